package command

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/geoattend-go/pkg/geo"
)

// GeoCommand returns the geo subcommand group. Its commands run locally.
func GeoCommand() *cli.Command {
	return &cli.Command{
		Name:  "geo",
		Usage: "Geographic helpers",
		Subcommands: []*cli.Command{
			{
				Name:      "distance",
				Usage:     "Great-circle distance and initial bearing between two points",
				ArgsUsage: "LAT,LNG LAT,LNG (put -- before a negative latitude)",
				Action:    geoDistance,
			},
		},
	}
}

func geoDistance(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("two points required: LAT,LNG LAT,LNG")
	}
	from, err := parsePoint(c.Args().Get(0))
	if err != nil {
		return err
	}
	to, err := parsePoint(c.Args().Get(1))
	if err != nil {
		return err
	}

	meters, err := geo.Distance(from, to)
	if err != nil {
		return err
	}
	bearing, err := geo.Bearing(from, to)
	if err != nil {
		return err
	}

	return render(c, &distanceResult{
		From:           c.Args().Get(0),
		To:             c.Args().Get(1),
		DistanceMeters: roundTo(meters, 2),
		BearingDegrees: roundTo(bearing, 2),
	})
}

// parsePoint parses "lat,lng" and checks the coordinate ranges.
func parsePoint(s string) (geo.Point, error) {
	latStr, lngStr, ok := strings.Cut(s, ",")
	if !ok {
		return geo.Point{}, fmt.Errorf("invalid point %q: want LAT,LNG", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("invalid latitude in %q: %w", s, err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("invalid longitude in %q: %w", s, err)
	}
	if err := geo.ValidateCoordinate(lat, lng); err != nil {
		return geo.Point{}, fmt.Errorf("invalid point %q: %w", s, err)
	}
	return geo.Point{Lat: lat, Lng: lng}, nil
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
