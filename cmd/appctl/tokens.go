package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"devsettings/internal/permissions"
	"devsettings/internal/settings"
)

func newTokenCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage internal integration tokens",
	}

	load := func(cmd *cobra.Command, slug string) (*settings.Details, error) {
		d := settings.New(c.client, permissions.Default, c.cfg.Client.Organization, slug, false)
		if err := d.Load(cmd.Context()); err != nil {
			return nil, err
		}
		return d, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list SLUG",
		Short: "List tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := load(cmd, args[0])
			if err != nil {
				return err
			}
			if !d.IsInternal() {
				return settings.ErrNotInternal
			}
			return c.print(d.Tokens())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add SLUG",
		Short: "Create a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := load(cmd, args[0])
			if err != nil {
				return err
			}
			tok, err := d.AddToken(cmd.Context())
			if err != nil {
				return err
			}
			if c.out == "text" {
				return c.print(tok.Token)
			}
			return c.print(tok)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove SLUG TOKEN",
		Short: "Revoke a token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := load(cmd, args[0])
			if err != nil {
				return err
			}
			if err := d.RemoveToken(cmd.Context(), args[1]); err != nil {
				return err
			}
			return c.print(fmt.Sprintf("token revoked, %d remaining", len(d.Tokens())))
		},
	})
	return cmd
}
