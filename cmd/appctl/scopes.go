package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"devsettings/internal/appform"
	"devsettings/internal/permissions"
)

func newScopesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scopes",
		Short: "Inspect the permission catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the permission catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.out != "text" {
				return c.print(permissions.Default)
			}
			for _, entry := range permissions.Default {
				for _, ch := range entry.Choices {
					fmt.Fprintf(c.stdout, "%-14s %-10s %v\n", entry.Resource, ch.Name, ch.Scopes)
				}
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "resolve SCOPE_OR_MESSAGE...",
		Short: "Show which permission a scope, or a scope rejection message, belongs to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				scope := arg
				if parsed, ok := appform.ParseScope(arg); ok {
					scope = parsed
				}
				res, ok := permissions.Default.ResolveResource(scope)
				if !ok {
					fmt.Fprintf(c.stdout, "%s\t(unknown)\n", scope)
					continue
				}
				fmt.Fprintf(c.stdout, "%s\t%s\n", scope, permissions.FieldKey(res))
			}
			return nil
		},
	})
	return cmd
}
