package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/internal/core/service"
)

func record(kind domain.AuditKind, eventID, employee string, d domain.Decision) *domain.AuditRecord {
	e := &domain.AttendanceEvent{EventID: eventID, TenantID: "acme", EmployeeID: employee, OverrideToken: "secret"}
	return domain.NewAuditRecord(kind, e, domain.NewResult(eventID, d), "gaak-test")
}

func TestAuditLog(t *testing.T) {
	log := NewAuditLog()
	ctx := context.Background()

	recs := []*domain.AuditRecord{
		record(domain.AuditEvaluation, "gaev-1", "emp-1", domain.DecisionRejectedOutsideZone),
		record(domain.AuditEvaluation, "gaev-2", "emp-2", domain.DecisionRejectedLowAccuracy),
		record(domain.AuditEvaluation, "gaev-3", "emp-1", domain.DecisionAccepted),
		record(domain.AuditOverride, "gaev-1", "emp-1", domain.DecisionAccepted),
	}
	for i, r := range recs {
		if err := log.Append(ctx, r); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if r.Seq != uint64(i+1) {
			t.Fatalf("Seq = %d, want %d", r.Seq, i+1)
		}
	}

	got, err := log.Get(ctx, "gaev-1")
	if err != nil || got.Kind != domain.AuditOverride {
		t.Fatalf("Get(gaev-1) = %+v, %v; want override record", got, err)
	}
	if got.Event.OverrideToken != "" {
		t.Fatal("override token stored in audit record")
	}
	if _, err := log.Get(ctx, "gaev-9"); !errors.Is(err, domain.ErrEventNotFound) {
		t.Fatalf("Get(unknown) err = %v, want ErrEventNotFound", err)
	}

	tests := []struct {
		name   string
		filter service.AuditFilter
		want   []string
	}{
		{"all latest", service.AuditFilter{}, []string{"gaev-1", "gaev-3", "gaev-2"}},
		{"rejected only", service.AuditFilter{RejectedOnly: true}, []string{"gaev-2"}},
		{"by employee", service.AuditFilter{EmployeeID: "emp-1"}, []string{"gaev-1", "gaev-3"}},
		{"limit", service.AuditFilter{Limit: 1}, []string{"gaev-1"}},
		{"other tenant", service.AuditFilter{TenantID: "globex"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := log.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(list) != len(tt.want) {
				t.Fatalf("List = %d records, want %v", len(list), tt.want)
			}
			for i, id := range tt.want {
				if list[i].EventID != id {
					t.Errorf("List[%d] = %s, want %s", i, list[i].EventID, id)
				}
			}
		})
	}

	if n := len(log.Records()); n != 4 {
		t.Fatalf("Records = %d, want 4", n)
	}
}

func TestAuditLog_ReadsDoNotAlias(t *testing.T) {
	log := NewAuditLog()
	ctx := context.Background()
	if err := log.Append(ctx, record(domain.AuditEvaluation, "gaev-1", "emp-1", domain.DecisionAccepted)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := log.Get(ctx, "gaev-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.Result.Decision = domain.DecisionRejectedOutsideZone
	got.Event.EmployeeID = "emp-2"
	got.Actor = "gaak-other"

	listed, err := log.List(ctx, service.AuditFilter{TenantID: "acme"})
	if err != nil || len(listed) != 1 {
		t.Fatalf("List = %v, %v", listed, err)
	}
	listed[0].Result.Decision = domain.DecisionRejectedLowAccuracy
	log.Records()[0].Event.EmployeeID = "emp-3"

	again, err := log.Get(ctx, "gaev-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again.Result.Decision != domain.DecisionAccepted || again.Event.EmployeeID != "emp-1" || again.Actor != "gaak-test" {
		t.Fatalf("stored record changed: %+v / %+v", again.Result, again.Event)
	}
}

func TestZoneStore(t *testing.T) {
	cfg := &domain.TenantConfig{TenantID: "acme", Zones: []*domain.Zone{{TenantID: "acme", ZoneID: "hq", RadiusMeters: 100}}}
	store := NewZoneStore(cfg)
	ctx := context.Background()

	cfg.Zones[0].RadiusMeters = 1
	got, err := store.LoadTenant(ctx, "acme")
	if err != nil || len(got.Zones) != 1 || got.Zones[0].RadiusMeters != 100 {
		t.Fatalf("LoadTenant = %+v, %v", got, err)
	}

	empty, err := store.LoadTenant(ctx, "nobody")
	if err != nil || empty.TenantID != "nobody" || len(empty.Zones) != 0 {
		t.Fatalf("LoadTenant(unknown) = %+v, %v", empty, err)
	}
}
