package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"devsettings/internal/client"
	"devsettings/internal/permissions"
	"devsettings/internal/settings"
)

// Definition is an integration described in YAML. Permissions maps a
// resource name (Project, Team, ...) to a choice (no-access, read, write,
// admin).
type Definition struct {
	Slug          string            `yaml:"slug"`
	Name          string            `yaml:"name"`
	Author        string            `yaml:"author"`
	Overview      string            `yaml:"overview"`
	Internal      bool              `yaml:"internal"`
	WebhookURL    *string           `yaml:"webhookUrl"`
	RedirectURL   *string           `yaml:"redirectUrl"`
	IsAlertable   *bool             `yaml:"isAlertable"`
	VerifyInstall *bool             `yaml:"verifyInstall"`
	Events        []string          `yaml:"events"`
	Permissions   map[string]string `yaml:"permissions"`
	Schema        map[string]any    `yaml:"schema"`
}

// LoadDefinition reads and checks a YAML definition file.
func LoadDefinition(path string) (*Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var def Definition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for res, choice := range def.Permissions {
		if permissions.Default.Scopes(permissions.Resource(res), choice) == nil {
			return nil, fmt.Errorf("%s: unknown permission %s=%s", path, res, choice)
		}
	}
	return &def, nil
}

// Stage applies the definition to the page's form, one field at a time, in
// a stable order.
func (def *Definition) Stage(d *settings.Details) {
	set := func(key string, value any) { d.OnFieldChange(key, value) }

	if def.Name != "" {
		set("name", def.Name)
	}
	if def.Author != "" {
		set("author", def.Author)
	}
	if def.Overview != "" {
		set("overview", def.Overview)
	}
	if def.RedirectURL != nil {
		set("redirectUrl", *def.RedirectURL)
	}
	if def.IsAlertable != nil {
		set("isAlertable", *def.IsAlertable)
	}
	// after isAlertable so clearing the webhook still wins for internal apps
	if def.WebhookURL != nil {
		set("webhookUrl", *def.WebhookURL)
	}
	if def.VerifyInstall != nil && !d.IsInternal() {
		set("verifyInstall", *def.VerifyInstall)
	}
	if def.Events != nil {
		set("events", def.Events)
	}
	if def.Schema != nil {
		set("schema", def.Schema)
	}

	resources := make([]string, 0, len(def.Permissions))
	for res := range def.Permissions {
		resources = append(resources, res)
	}
	sort.Strings(resources)
	for _, res := range resources {
		set(permissions.FieldKey(permissions.Resource(res)), def.Permissions[res])
	}
}

func newApplyCmd(c *cli) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "apply -f FILE",
		Short: "Create or update an integration from a YAML definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("-f is required")
			}
			def, err := LoadDefinition(file)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			d := settings.New(c.client, permissions.Default, c.cfg.Client.Organization, def.Slug, def.Internal)
			if err := d.Load(ctx); err != nil {
				return err
			}
			def.Stage(d)

			res, err := d.Submit(ctx)
			if err != nil {
				var failure *settings.SubmitFailure
				if errors.As(err, &failure) {
					if errs := d.Form().FormErrors(); len(errs) > 0 {
						_ = c.print(errs)
					}
					if failure.FirstErrorField != "" {
						return fmt.Errorf("%s (first error: %s)", failure.Message, failure.FirstErrorField)
					}
					return errors.New(failure.Message)
				}
				return err
			}
			if c.out == "text" {
				fmt.Fprintln(c.stdout, res.Message)
				fmt.Fprintln(c.stdout, res.RedirectURL)
				return nil
			}
			return c.print(res.App)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "integration definition (YAML)")
	return cmd
}

func newGetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get SLUG",
		Short: "Show an integration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := settings.New(c.client, permissions.Default, c.cfg.Client.Organization, args[0], false)
			if err := d.Load(cmd.Context()); err != nil {
				return notFound(err, args[0])
			}
			if c.out == "text" {
				fmt.Fprintln(c.stdout, d.Title())
				if !d.ShowAuthInfo() {
					fmt.Fprintln(c.stdout, "credentials hidden: the integration's permissions exceed yours")
				}
			}
			return c.print(d.App())
		},
	}
}

func newListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the organization's integrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			apps, err := c.client.ListApps(cmd.Context())
			if err != nil {
				return err
			}
			if c.out != "text" {
				return c.print(apps)
			}
			for _, app := range apps {
				fmt.Fprintf(c.stdout, "%-30s %-12s %s\n", app.Slug, app.Status, app.Name)
			}
			return nil
		},
	}
}

func newDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete SLUG",
		Short: "Delete an unpublished integration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.client.DeleteApp(cmd.Context(), args[0]); err != nil {
				return notFound(err, args[0])
			}
			return c.print(fmt.Sprintf("%s deleted", args[0]))
		},
	}
}

func newAuditCmd(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit SLUG",
		Short: "Show recorded changes to an integration (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := c.client.AuditLog(cmd.Context(), args[0], limit)
			if err != nil {
				return notFound(err, args[0])
			}
			if c.out != "text" {
				return c.print(events)
			}
			for _, e := range events {
				fmt.Fprintf(c.stdout, "%v  %-28v %v\n", e["created_at"], e["action"], e["user_id"])
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum events to show")
	return cmd
}

// notFound replaces a 404 with a message naming the slug.
func notFound(err error, slug string) error {
	if client.IsStatus(err, http.StatusNotFound) {
		return fmt.Errorf("integration %q not found", slug)
	}
	return err
}
