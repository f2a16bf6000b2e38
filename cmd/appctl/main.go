package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"devsettings/internal/client"
	"devsettings/internal/config"
	"devsettings/internal/logger"
)

// cli carries the resolved flags shared by every command.
type cli struct {
	configPath string
	baseURL    string
	token      string
	org        string
	out        string
	verbose    bool

	cfg    *config.Config
	client *client.Client
	stdout io.Writer
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	c := &cli{stdout: stdout}

	root := &cobra.Command{
		Use:           "appctl",
		Short:         "Manage integration registrations through the devsettings API",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default app.yaml search)")
	root.PersistentFlags().StringVar(&c.baseURL, "api-url", "", "API base URL, e.g. http://localhost:8080/api/0 (env CLIENT_BASE_URL)")
	root.PersistentFlags().StringVar(&c.token, "token", "", "bearer token (env CLIENT_TOKEN)")
	root.PersistentFlags().StringVar(&c.org, "org", "", "organization slug (env CLIENT_ORGANIZATION)")
	root.PersistentFlags().StringVarP(&c.out, "out", "o", "text", "output format: text|json|yaml")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newLoginCmd(c),
		newWhoamiCmd(c),
		newApplyCmd(c),
		newGetCmd(c),
		newListCmd(c),
		newDeleteCmd(c),
		newAuditCmd(c),
		newTokenCmd(c),
		newScopesCmd(c),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	level := "warn"
	if c.verbose {
		level = "debug"
	}
	logger.Init(logger.Config{Env: "dev", Level: level})

	cfg, err := config.LoadFile(c.configPath)
	if err != nil {
		return err
	}
	if c.baseURL != "" {
		cfg.Client.BaseURL = c.baseURL
	}
	if c.token != "" {
		cfg.Client.Token = c.token
	}
	if c.org != "" {
		cfg.Client.Organization = c.org
	}
	c.cfg = cfg

	cl, err := client.New(cfg.Client)
	if err != nil {
		return err
	}
	c.client = cl
	return nil
}

// print renders v in the selected format; text falls back to YAML for
// structured values.
func (c *cli) print(v any) error {
	switch c.out {
	case "json":
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "text":
		if s, ok := v.(string); ok {
			_, err := fmt.Fprintln(c.stdout, s)
			return err
		}
		enc := yaml.NewEncoder(c.stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(toPlain(v))
	default:
		return fmt.Errorf("unknown output format %q", c.out)
	}
}

// toPlain round-trips v through JSON so YAML output uses the API field names.
func toPlain(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func newLoginCmd(c *cli) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange credentials for an access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}
			token, err := c.client.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			return c.print(token)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

func newWhoamiCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the account behind the current token",
		RunE: func(cmd *cobra.Command, args []string) error {
			me, err := c.client.Me(cmd.Context())
			if err != nil {
				return err
			}
			if c.out == "text" {
				return c.print(fmt.Sprintf("%v (%v) scopes: %v", me["email"], me["organization"], me["scopes"]))
			}
			return c.print(me)
		},
	}
}
