package command

import (
	"fmt"
	"net/url"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/geoattend-go/internal/cli/connection"
)

// APIKeyCommand returns the apikey subcommand group.
func APIKeyCommand() *cli.Command {
	return &cli.Command{
		Name:    "apikey",
		Aliases: []string{"key"},
		Usage:   "Manage API keys (platform admin)",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List API keys",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tenant", Aliases: []string{"t"}, Usage: "Filter by tenant"},
					&cli.StringFlag{Name: "role", Aliases: []string{"r"}, Usage: "Filter by role"},
				},
				Action: apikeyList,
			},
			{
				Name:  "create",
				Usage: "Create an API key",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Key name", Required: true},
					&cli.StringFlag{Name: "role", Aliases: []string{"r"}, Value: "device", Usage: "device, tenant_admin, metrics or admin"},
					&cli.StringFlag{Name: "tenant", Aliases: []string{"t"}, Usage: "Tenant the key belongs to"},
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Key description"},
					&cli.IntFlag{Name: "rate-limit", Usage: "Requests per second (0 uses the server default)"},
					&cli.StringSliceFlag{Name: "allow", Usage: "Allowed client IP or CIDR (repeatable)"},
				},
				Action: apikeyCreate,
			},
			{
				Name:      "disable",
				Usage:     "Disable an API key",
				ArgsUsage: "KEY_ID",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Skip confirmation"},
				},
				Action: apikeyDisable,
			},
			{
				Name:      "enable",
				Usage:     "Enable an API key",
				ArgsUsage: "KEY_ID",
				Action:    apikeyEnable,
			},
		},
	}
}

func apikeyList(c *cli.Context) error {
	query := url.Values{}
	if t := c.String("tenant"); t != "" {
		query.Set("tenantId", t)
	}
	if r := c.String("role"); r != "" {
		query.Set("role", r)
	}

	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	path := "/admin/v1/keys"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	resp, err := client.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result struct {
		Keys []apiKeyRecord `json:"keys"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}
	if err := render(c, result.Keys); err != nil {
		return err
	}
	if humanOutput(c) {
		fmt.Fprintf(c.App.Writer, "\nTotal: %d keys\n", len(result.Keys))
	}
	return nil
}

func apikeyCreate(c *cli.Context) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	body := map[string]any{
		"name": c.String("name"),
		"role": c.String("role"),
	}
	if t := c.String("tenant"); t != "" {
		body["tenantId"] = t
	}
	if desc := c.String("description"); desc != "" {
		body["description"] = desc
	}
	if rl := c.Int("rate-limit"); rl > 0 {
		body["rateLimit"] = rl
	}
	if allow := c.StringSlice("allow"); len(allow) > 0 {
		body["allowlist"] = allow
	}

	resp, err := client.Post(ctx, "/admin/v1/keys", body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result createdAPIKey
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}
	if !humanOutput(c) {
		return render(c, &result)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "API key created:\n")
	fmt.Fprintf(w, "  Key ID: %s\n", result.KeyID)
	fmt.Fprintf(w, "  Secret: %s\n", result.Secret)
	fmt.Fprintf(w, "  Role:   %s\n", result.Role)
	if result.TenantID != "" {
		fmt.Fprintf(w, "  Tenant: %s\n", result.TenantID)
	}
	fmt.Fprintf(w, "\nSave the secret now. It cannot be retrieved later.\n")
	fmt.Fprintf(w, "Authorization: Bearer %s:%s\n", result.KeyID, result.Secret)
	return nil
}

func apikeyDisable(c *cli.Context) error {
	keyID := c.Args().First()
	if keyID == "" {
		return fmt.Errorf("key ID required")
	}

	if !c.Bool("force") {
		fmt.Fprintf(c.App.Writer, "Disable API key '%s'? [y/N]: ", truncateID(keyID))
		var confirm string
		fmt.Fscanln(c.App.Reader, &confirm)
		if confirm != "y" && confirm != "Y" {
			fmt.Fprintln(c.App.Writer, "Cancelled.")
			return nil
		}
	}
	return setKeyStatus(c, keyID, false)
}

func apikeyEnable(c *cli.Context) error {
	keyID := c.Args().First()
	if keyID == "" {
		return fmt.Errorf("key ID required")
	}
	return setKeyStatus(c, keyID, true)
}

func setKeyStatus(c *cli.Context, keyID string, enabled bool) error {
	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Post(ctx, "/admin/v1/keys/"+url.PathEscape(keyID)+"/status",
		map[string]bool{"enabled": enabled})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	if err := connection.ParseResponse(resp, nil); err != nil {
		return err
	}
	if !humanOutput(c) {
		return render(c, map[string]any{"keyId": keyID, "enabled": enabled})
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Fprintf(c.App.Writer, "API key %s %s.\n", truncateID(keyID), state)
	return nil
}
