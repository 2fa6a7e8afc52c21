package command

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/geoattend-go/internal/cli/connection"
	"github.com/yndnr/geoattend-go/internal/infra/buildinfo"
)

// SystemCommand returns the system subcommand group.
func SystemCommand() *cli.Command {
	return &cli.Command{
		Name:    "system",
		Aliases: []string{"sys"},
		Usage:   "Server health and maintenance",
		Subcommands: []*cli.Command{
			{
				Name:   "health",
				Usage:  "Check server liveness",
				Action: systemHealth,
			},
			{
				Name:   "ready",
				Usage:  "Check server readiness and its dependencies",
				Action: systemReady,
			},
			{
				Name:   "reload-zones",
				Usage:  "Reload the zone file (platform admin)",
				Action: systemReloadZones,
			},
			{
				Name:   "version",
				Usage:  "Show CLI version information",
				Action: systemVersion,
			},
		},
	}
}

func systemHealth(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Get(ctx, "/health")
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}

	var result healthStatus
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}
	if !humanOutput(c) {
		return render(c, &result)
	}
	fmt.Fprintf(c.App.Writer, "Server %s: %s (version %s)\n", client.BaseURL(), result.Status, result.Version)
	return nil
}

func systemReady(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Get(ctx, "/ready")
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}

	var result healthStatus
	err = connection.ParseResponse(resp, &result)
	var apiErr *connection.APIError
	if errors.As(err, &apiErr) {
		// Not ready: the failing checks are in the error details.
		if checks, ok := apiErr.Details.(map[string]any); ok {
			result.Status = "not ready"
			result.Checks = make(map[string]string, len(checks))
			for name, v := range checks {
				result.Checks[name] = fmt.Sprint(v)
			}
			if rerr := renderReady(c, &result); rerr != nil {
				return rerr
			}
		}
		return err
	}
	if err != nil {
		return err
	}
	return renderReady(c, &result)
}

func renderReady(c *cli.Context, result *healthStatus) error {
	if !humanOutput(c) {
		return render(c, result)
	}
	fmt.Fprintf(c.App.Writer, "Status: %s\n\n", result.Status)
	return render(c, result.Checks)
}

func systemReloadZones(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Post(ctx, "/admin/v1/zones/reload", nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result zoneReload
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}
	if !humanOutput(c) {
		return render(c, &result)
	}
	fmt.Fprintf(c.App.Writer, "Zones reloaded: %d tenants\n", result.Tenants)
	return nil
}

func systemVersion(c *cli.Context) error {
	info := buildinfo.Get()
	if !humanOutput(c) {
		return render(c, info)
	}
	fmt.Fprintf(c.App.Writer, "geoattend-cli %s\n", info.Version)
	fmt.Fprintf(c.App.Writer, "  commit:  %s\n", info.Commit)
	fmt.Fprintf(c.App.Writer, "  built:   %s\n", info.BuildTime)
	fmt.Fprintf(c.App.Writer, "  go:      %s %s/%s\n", info.GoVersion, runtime.GOOS, runtime.GOARCH)
	return nil
}
