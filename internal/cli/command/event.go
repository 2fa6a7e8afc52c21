package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/yndnr/geoattend-go/internal/cli/connection"
	"github.com/yndnr/geoattend-go/internal/cli/output"
	"github.com/yndnr/geoattend-go/internal/core/service"
)

// defaultChunkSize matches the server's default batch limit.
const defaultChunkSize = 500

// EventCommand returns the event subcommand group.
func EventCommand() *cli.Command {
	return &cli.Command{
		Name:    "event",
		Aliases: []string{"ev"},
		Usage:   "Submit and inspect attendance events",
		Subcommands: []*cli.Command{
			{
				Name:  "submit",
				Usage: "Submit one check-in or check-out",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tenant", Aliases: []string{"t"}, Usage: "Tenant ID (defaults to the key's tenant)"},
					&cli.StringFlag{Name: "employee", Aliases: []string{"e"}, Usage: "Employee ID", Required: true},
					&cli.StringFlag{Name: "type", Value: "CheckIn", Usage: "CheckIn or CheckOut"},
					&cli.Float64Flag{Name: "lat", Usage: "Latitude in degrees", Required: true},
					&cli.Float64Flag{Name: "lng", Usage: "Longitude in degrees", Required: true},
					&cli.Float64Flag{Name: "accuracy", Aliases: []string{"a"}, Usage: "Reported accuracy radius in meters"},
					&cli.StringFlag{Name: "client-event-id", Usage: "Idempotency key (generated when omitted)"},
					&cli.TimestampFlag{Name: "device-time", Layout: time.RFC3339, Usage: "Capture time (default now)"},
					&cli.StringFlag{Name: "device-id", Usage: "Device identifier"},
					&cli.BoolFlag{Name: "mock", Usage: "Mark the location as reported by a mock provider"},
					&cli.StringFlag{Name: "override-token", Usage: "Signed override token"},
				},
				Action: eventSubmit,
			},
			{
				Name:  "batch",
				Usage: "Submit events from a JSON or YAML file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "File holding a list of events", Required: true},
					&cli.IntFlag{Name: "chunk-size", Value: defaultChunkSize, Usage: "Events per request"},
				},
				Action: eventBatch,
			},
			{
				Name:      "override",
				Usage:     "Accept a rejected event",
				ArgsUsage: "EVENT_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "reason", Aliases: []string{"r"}, Usage: "Reason recorded in the audit log", Required: true},
				},
				Action: eventOverride,
			},
			{
				Name:      "get",
				Usage:     "Show an event and its latest decision",
				ArgsUsage: "EVENT_ID",
				Action:    eventGet,
			},
			{
				Name:  "review",
				Usage: "List rejected events awaiting review",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tenant", Aliases: []string{"t"}, Usage: "Tenant ID"},
					&cli.StringFlag{Name: "employee", Aliases: []string{"e"}, Usage: "Filter by employee"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 50, Usage: "Maximum records"},
				},
				Action: eventReview,
			},
			{
				Name:  "token",
				Usage: "Sign an override token locally with the tenant secret",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "secret", Usage: "Tenant override secret", EnvVars: []string{"GEOATTEND_OVERRIDE_SECRET"}, Required: true},
					&cli.StringFlag{Name: "tenant", Aliases: []string{"t"}, Usage: "Tenant ID", Required: true},
					&cli.StringFlag{Name: "employee", Aliases: []string{"e"}, Usage: "Employee ID", Required: true},
					&cli.StringFlag{Name: "client-event-id", Usage: "Restrict the token to one submission"},
					&cli.DurationFlag{Name: "ttl", Value: time.Hour, Usage: "Token lifetime (max 24h)"},
				},
				Action: eventToken,
			},
		},
	}
}

func eventSubmit(c *cli.Context) error {
	lat, lng := c.Float64("lat"), c.Float64("lng")
	in := eventInput{
		TenantID:         tenant(c),
		EmployeeID:       c.String("employee"),
		ClientEventID:    c.String("client-event-id"),
		Type:             c.String("type"),
		Lat:              &lat,
		Lng:              &lng,
		AccuracyMeters:   c.Float64("accuracy"),
		DeviceTimestamp:  time.Now().UTC(),
		DeviceID:         c.String("device-id"),
		MockLocationFlag: c.Bool("mock"),
		OverrideToken:    c.String("override-token"),
	}
	if ts := c.Timestamp("device-time"); ts != nil {
		in.DeviceTimestamp = ts.UTC()
	}
	if in.ClientEventID == "" {
		in.ClientEventID = newClientEventID()
	}

	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Post(ctx, "/v1/attendance/events", in)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result validationResult
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}
	if humanOutput(c) {
		fmt.Fprintf(c.App.Writer, "Client event ID: %s\n\n", in.ClientEventID)
	}
	return render(c, &result)
}

func eventBatch(c *cli.Context) error {
	events, err := readEventsFile(c.String("file"))
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("no events in %s", c.String("file"))
	}
	size := c.Int("chunk-size")
	if size <= 0 {
		size = defaultChunkSize
	}

	defTenant := tenant(c)
	for i := range events {
		if events[i].TenantID == "" {
			events[i].TenantID = defTenant
		}
		if events[i].ClientEventID == "" {
			events[i].ClientEventID = newClientEventID()
		}
	}

	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}

	var total batchResponse
	bar := output.NewProgressBar(c.App.ErrWriter, "Submitting", len(events))
	for start := 0; start < len(events); start += size {
		end := min(start+size, len(events))

		ctx, cancel := requestContext(c)
		resp, err := client.Post(ctx, "/v1/attendance/events/batch", map[string]any{"events": events[start:end]})
		if err != nil {
			cancel()
			return fmt.Errorf("request failed at event %d: %w", start, err)
		}
		var chunk batchResponse
		err = connection.ParseResponse(resp, &chunk)
		cancel()
		if err != nil {
			return fmt.Errorf("batch at event %d: %w", start, err)
		}

		for _, item := range chunk.Items {
			item.Index += start
			total.Items = append(total.Items, item)
		}
		total.Accepted += chunk.Accepted
		total.Rejected += chunk.Rejected
		total.Failed += chunk.Failed
		bar.Add(end - start)
	}
	bar.Finish()

	if !humanOutput(c) {
		return render(c, &total)
	}
	rows := make([]batchRow, len(total.Items))
	for i, item := range total.Items {
		rows[i] = batchRow{Index: item.Index, ClientEventID: item.ClientEventID}
		if item.Result != nil {
			rows[i].EventID = item.Result.EventID
			rows[i].Decision = item.Result.Decision
			rows[i].Distance = item.Result.DistanceMeters
			rows[i].Flags = item.Result.Flags
		}
		if item.Error != nil {
			rows[i].Error = item.Error.Code
		}
	}
	if err := render(c, rows); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "\nAccepted: %d  Rejected: %d  Failed: %d\n", total.Accepted, total.Rejected, total.Failed)
	return nil
}

// readEventsFile reads a list of events, or an object with an "events"
// list, from JSON or YAML.
func readEventsFile(path string) ([]eventInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	var events []eventInput
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &events); err != nil {
			var wrapped struct {
				Events []eventInput `json:"events"`
			}
			if werr := json.Unmarshal(data, &wrapped); werr != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			events = wrapped.Events
		}
	default:
		if err := yaml.Unmarshal(data, &events); err != nil {
			var wrapped struct {
				Events []eventInput `yaml:"events"`
			}
			if werr := yaml.Unmarshal(data, &wrapped); werr != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			events = wrapped.Events
		}
	}
	return events, nil
}

func eventOverride(c *cli.Context) error {
	eventID := c.Args().First()
	if eventID == "" {
		return fmt.Errorf("event ID required")
	}

	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Post(ctx, "/v1/attendance/events/"+url.PathEscape(eventID)+"/override",
		map[string]string{"reason": c.String("reason")})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result validationResult
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}
	return render(c, &result)
}

func eventGet(c *cli.Context) error {
	eventID := c.Args().First()
	if eventID == "" {
		return fmt.Errorf("event ID required")
	}

	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Get(ctx, "/v1/attendance/events/"+url.PathEscape(eventID))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var rec auditRecord
	if err := connection.ParseResponse(resp, &rec); err != nil {
		return err
	}
	if !humanOutput(c) {
		return render(c, &rec)
	}
	if rec.Event != nil {
		if err := render(c, rec.Event); err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer)
	}
	if rec.Result != nil {
		if err := render(c, rec.Result); err != nil {
			return err
		}
	}
	fmt.Fprintf(c.App.Writer, "\nRecorded %s by %s (%s, seq %d)\n",
		rec.RecordedAt.Local().Format(time.RFC3339), rec.Actor, rec.Kind, rec.Seq)
	return nil
}

func eventReview(c *cli.Context) error {
	query := url.Values{}
	if t := tenant(c); t != "" {
		query.Set("tenantId", t)
	}
	if e := c.String("employee"); e != "" {
		query.Set("employeeId", e)
	}
	if n := c.Int("limit"); n > 0 {
		query.Set("limit", strconv.Itoa(n))
	}

	client, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	path := "/v1/attendance/review"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	resp, err := client.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result reviewResponse
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}
	if !humanOutput(c) {
		return render(c, &result)
	}
	rows := make([]reviewRow, len(result.Items))
	for i, rec := range result.Items {
		rows[i] = newReviewRow(rec)
	}
	if err := render(c, rows); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "\nTotal: %d events\n", result.Total)
	return nil
}

func eventToken(c *cli.Context) error {
	token, err := service.IssueOverrideToken(
		c.String("secret"),
		c.String("tenant"),
		c.String("employee"),
		c.String("client-event-id"),
		c.Duration("ttl"),
	)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, token)
	return nil
}

func newClientEventID() string {
	return "cli-" + strings.ToLower(ulid.Make().String())
}
