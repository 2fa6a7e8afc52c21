package command

import (
	"encoding/json"
	"math"
	"testing"
)

func TestGeoDistance(t *testing.T) {
	env := makeTestContext(nil, findSub(GeoCommand(), "distance"), "-o", "json", "52.5200,13.4050", "52.5200,13.4150")
	if err := geoDistance(env.ctx); err != nil {
		t.Fatalf("geoDistance() error = %v", err)
	}

	var got distanceResult
	if err := json.Unmarshal(env.stdout.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	// 0.01 degrees of longitude at 52.52N is about 677 m.
	if math.Abs(got.DistanceMeters-677) > 2 {
		t.Errorf("distance = %v, want about 677", got.DistanceMeters)
	}
	if math.Abs(got.BearingDegrees-90) > 0.1 {
		t.Errorf("bearing = %v, want about 90", got.BearingDegrees)
	}
}

func TestGeoDistance_SamePoint(t *testing.T) {
	env := makeTestContext(nil, findSub(GeoCommand(), "distance"), "-o", "json", "10,20", "10,20")
	if err := geoDistance(env.ctx); err != nil {
		t.Fatalf("geoDistance() error = %v", err)
	}
	var got distanceResult
	json.Unmarshal(env.stdout.Bytes(), &got)
	if got.DistanceMeters != 0 {
		t.Errorf("distance = %v, want 0", got.DistanceMeters)
	}
}

func TestGeoDistance_InvalidArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"one point", []string{"1,2"}},
		{"no comma", []string{"1", "2,3"}},
		{"bad number", []string{"a,2", "2,3"}},
		{"latitude out of range", []string{"91,0", "0,0"}},
		{"longitude out of range", []string{"0,0", "0,181"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := makeTestContext(nil, findSub(GeoCommand(), "distance"), tt.args...)
			if err := geoDistance(env.ctx); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParsePoint(t *testing.T) {
	p, err := parsePoint(" -33.8688 , 151.2093 ")
	if err != nil {
		t.Fatalf("parsePoint() error = %v", err)
	}
	if p.Lat != -33.8688 || p.Lng != 151.2093 {
		t.Errorf("point = %+v", p)
	}
}
