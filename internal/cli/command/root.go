package command

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	cliconfig "github.com/yndnr/geoattend-go/internal/cli/config"
	"github.com/yndnr/geoattend-go/internal/cli/connection"
	"github.com/yndnr/geoattend-go/internal/cli/output"
	"github.com/yndnr/geoattend-go/internal/infra/buildinfo"
)

const metaConfig = "cliConfig"

// App creates the CLI application.
func App() *cli.App {
	info := buildinfo.Get()
	return &cli.App{
		Name:    "geoattend-cli",
		Usage:   "Geofenced attendance command-line tool",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.BuildTime),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			EventCommand(),
			SessionCommand(),
			GeoCommand(),
			APIKeyCommand(),
			SystemCommand(),
			ConfigCommand(),
		},
		Before: func(c *cli.Context) error {
			cfg, err := cliconfig.Load(c.String("cli-config"))
			if err != nil {
				return err
			}
			c.App.Metadata[metaConfig] = cfg
			return nil
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "geoattend-server address (e.g., localhost:5080)",
			EnvVars: []string{"GEOATTEND_SERVER"},
		},
		&cli.StringFlag{
			Name:    "api-key-id",
			Aliases: []string{"k"},
			Usage:   "API key ID for authentication",
			EnvVars: []string{"GEOATTEND_API_KEY_ID"},
		},
		&cli.StringFlag{
			Name:    "api-key",
			Aliases: []string{"K"},
			Usage:   "API key secret for authentication",
			EnvVars: []string{"GEOATTEND_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "profile",
			Aliases: []string{"p"},
			Usage:   "Connection profile from the CLI config",
			EnvVars: []string{"GEOATTEND_PROFILE"},
		},
		&cli.StringFlag{
			Name:    "cli-config",
			Usage:   "CLI config file",
			EnvVars: []string{"GEOATTEND_CLI_CONFIG"},
			Value:   cliconfig.DefaultConfigPath(),
		},
		&cli.StringFlag{
			Name:  "ca-file",
			Usage: "CA bundle for https servers",
		},
		&cli.BoolFlag{
			Name:  "insecure",
			Usage: "Skip TLS certificate verification",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Request timeout",
			Value: connection.DefaultTimeout,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable verbose output",
		},
	}
}

// GlobalFlags defines flags available to all commands, merged over the
// active profile.
type GlobalFlags struct {
	Server   string
	APIKeyID string
	APIKey   string
	TenantID string
	CAFile   string
	Insecure bool
	Timeout  time.Duration

	Output  string
	Wide    bool
	Verbose bool
}

// cliConfig returns the loaded CLI config, or the defaults when the app
// did not run Before.
func cliConfig(c *cli.Context) *cliconfig.CLIConfig {
	if c.App != nil {
		if cfg, ok := c.App.Metadata[metaConfig].(*cliconfig.CLIConfig); ok {
			return cfg
		}
	}
	return cliconfig.Default()
}

// ParseGlobalFlags resolves the global flags. Explicit flags and
// environment variables win over the profile.
func ParseGlobalFlags(c *cli.Context) (*GlobalFlags, error) {
	cfg := cliConfig(c)
	profile, err := cfg.Profile(c.String("profile"))
	if err != nil {
		return nil, err
	}

	flags := &GlobalFlags{
		Server:   pick(c.String("server"), profile.Server),
		APIKeyID: pick(c.String("api-key-id"), profile.APIKeyID),
		APIKey:   pick(c.String("api-key"), profile.APIKey),
		TenantID: profile.TenantID,
		CAFile:   pick(c.String("ca-file"), profile.CAFile),
		Insecure: c.Bool("insecure") || profile.Insecure,
		Timeout:  c.Duration("timeout"),
		Output:   pick(c.String("output"), cfg.Output),
		Wide:     c.Bool("wide"),
		Verbose:  c.Bool("verbose"),
	}
	if _, err := output.ParseFormat(flags.Output); err != nil {
		return nil, err
	}
	return flags, nil
}

func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// EnsureConnected returns an HTTP client for the resolved server.
func EnsureConnected(c *cli.Context) (*connection.HTTPClient, error) {
	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return nil, err
	}
	if flags.Verbose {
		fmt.Fprintf(c.App.ErrWriter, "server: %s\n", flags.Server)
	}
	return connection.NewHTTPClient(connection.Options{
		Server:   flags.Server,
		APIKeyID: flags.APIKeyID,
		APIKey:   flags.APIKey,
		CAFile:   flags.CAFile,
		Insecure: flags.Insecure,
		Timeout:  flags.Timeout,
	})
}

// requestContext bounds a command's server calls by --timeout.
func requestContext(c *cli.Context) (context.Context, context.CancelFunc) {
	timeout := c.Duration("timeout")
	if timeout <= 0 {
		timeout = connection.DefaultTimeout
	}
	return context.WithTimeout(c.Context, timeout)
}

// render writes data to the app writer in the selected format.
func render(c *cli.Context, data any) error {
	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return err
	}
	format, _ := output.ParseFormat(flags.Output)
	return output.NewFormatter(format, flags.Wide).Format(c.App.Writer, data)
}

// humanOutput reports whether the table format is selected, in which case
// commands may add summary lines around the table.
func humanOutput(c *cli.Context) bool {
	flags, err := ParseGlobalFlags(c)
	return err == nil && (flags.Output == "" || flags.Output == string(output.FormatTable))
}

// tenant returns --tenant, or the profile tenant.
func tenant(c *cli.Context) string {
	if t := c.String("tenant"); t != "" {
		return t
	}
	if flags, err := ParseGlobalFlags(c); err == nil {
		return flags.TenantID
	}
	return ""
}

// truncateID shortens long IDs for table output.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:16] + "..."
}
