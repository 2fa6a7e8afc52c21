package command

import (
	"fmt"
	"net/url"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/geoattend-go/internal/cli/connection"
)

const dateLayout = "2006-01-02"

// SessionCommand returns the session subcommand group.
func SessionCommand() *cli.Command {
	return &cli.Command{
		Name:    "session",
		Aliases: []string{"sess"},
		Usage:   "Inspect attendance sessions",
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Show an employee's session for a day, or sessions over a date range",
				ArgsUsage: "EMPLOYEE_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tenant", Aliases: []string{"t"}, Usage: "Tenant ID (defaults to the key's tenant)"},
					&cli.StringFlag{Name: "date", Aliases: []string{"d"}, Usage: "Local date YYYY-MM-DD (default today)"},
					&cli.StringFlag{Name: "from", Usage: "First date of a range, YYYY-MM-DD"},
					&cli.StringFlag{Name: "to", Usage: "Last date of a range, YYYY-MM-DD"},
				},
				Action: sessionGet,
			},
		},
	}
}

func sessionGet(c *cli.Context) error {
	employeeID := c.Args().First()
	if employeeID == "" {
		return fmt.Errorf("employee ID required")
	}

	query := url.Values{}
	if t := tenant(c); t != "" {
		query.Set("tenantId", t)
	}

	from, to := c.String("from"), c.String("to")
	ranged := from != "" || to != ""
	switch {
	case ranged && c.String("date") != "":
		return fmt.Errorf("--date cannot be combined with --from/--to")
	case ranged:
		if from == "" || to == "" {
			return fmt.Errorf("--from and --to must be given together")
		}
		for _, d := range []string{from, to} {
			if _, err := time.Parse(dateLayout, d); err != nil {
				return fmt.Errorf("invalid date %q: want YYYY-MM-DD", d)
			}
		}
		query.Set("from", from)
		query.Set("to", to)
	default:
		date := c.String("date")
		if date == "" {
			date = time.Now().Format(dateLayout)
		}
		if _, err := time.Parse(dateLayout, date); err != nil {
			return fmt.Errorf("invalid date %q: want YYYY-MM-DD", date)
		}
		query.Set("date", date)
	}

	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Get(ctx, "/v1/attendance/sessions/"+url.PathEscape(employeeID)+"?"+query.Encode())
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	if !ranged {
		var session sessionRecord
		if err := connection.ParseResponse(resp, &session); err != nil {
			return err
		}
		return render(c, []sessionRecord{session})
	}

	var list sessionList
	if err := connection.ParseResponse(resp, &list); err != nil {
		return err
	}
	if !humanOutput(c) {
		return render(c, &list)
	}
	if err := render(c, list.Items); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "\nTotal: %d sessions\n", list.Total)
	return nil
}
