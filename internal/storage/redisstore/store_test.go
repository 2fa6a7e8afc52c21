package redisstore

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/geoattend-go/internal/core/domain"
)

// openTestStore connects to GEOATTEND_TEST_REDIS_URL under a fresh key
// prefix, skipping the test when no server is configured.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("GEOATTEND_TEST_REDIS_URL")
	if url == "" {
		t.Skip("GEOATTEND_TEST_REDIS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	prefix := "geoattend-test:" + ulid.Make().String() + ":"
	s, err := Open(ctx, Config{URL: url, KeyPrefix: prefix}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			s.client.Del(ctx, iter.Val())
		}
		s.Close()
	})
	return s
}

func openedSession(key domain.SessionKey) *domain.AttendanceSession {
	s := domain.NewSession(key)
	s.Apply(&domain.AttendanceEvent{EventID: "gaev-in", Type: domain.EventCheckIn, DeviceTimestamp: time.Now()})
	return s
}

func TestConnect(t *testing.T) {
	tests := []struct {
		url      string
		wantAddr string
		wantErr  bool
	}{
		{"localhost:6379", "localhost:6379", false},
		{"redis://redis.internal:6380/2", "redis.internal:6380", false},
		{"redis://%zz", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			c, err := Connect(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Connect: %v", err)
			}
			defer c.Close()
			if c.Options().Addr != tt.wantAddr {
				t.Errorf("Addr = %q, want %q", c.Options().Addr, tt.wantAddr)
			}
		})
	}
}

func TestOpen_RequiresURL(t *testing.T) {
	if _, err := Open(context.Background(), Config{}, nil); err == nil {
		t.Fatal("Open without url succeeded")
	}
}

func TestNew_KeyLayout(t *testing.T) {
	c, _ := Connect("localhost:6379")
	s := New(c, Config{}, nil)
	defer s.Close()

	if got := s.dateIndexKey("acme", "emp-1"); got != "geoattend:sidx/acme/emp-1" {
		t.Errorf("dateIndexKey = %q", got)
	}
	if got := (&APIKeyStore{s: s}).indexKey(); got != "geoattend:keys" {
		t.Errorf("indexKey = %q", got)
	}
}

func TestStore_Sessions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	key := domain.SessionKey{TenantID: "acme", EmployeeID: "emp-1", Date: "2026-03-10"}

	got, err := s.GetSession(ctx, key)
	if err != nil || got.State != domain.SessionNotStarted {
		t.Fatalf("GetSession = %+v, %v", got, err)
	}

	err = s.Commit(ctx, &domain.Commit{
		Session: openedSession(key), TenantID: "acme", EmployeeID: "emp-1", ClientEventID: "c-1",
		Fix:    &domain.LocationFix{EventID: "gaev-in", Lat: 12.97, Lng: 77.59},
		Result: domain.NewResult("gaev-in", domain.DecisionAccepted),
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if got, _ := s.GetSession(ctx, key); got.Version != 1 || got.State != domain.SessionOpen {
		t.Fatalf("GetSession = %s v%d, want Open v1", got.State, got.Version)
	}
	if r, err := s.GetResult(ctx, "acme", "emp-1", "c-1"); err != nil || r.Decision != domain.DecisionAccepted {
		t.Fatalf("GetResult = %+v, %v", r, err)
	}
	if fix, err := s.LastFix(ctx, "acme", "emp-1"); err != nil || fix == nil {
		t.Fatalf("LastFix = %+v, %v", fix, err)
	}

	err = s.Commit(ctx, &domain.Commit{Session: openedSession(key), ExpectedVersion: 0, TenantID: "acme", EmployeeID: "emp-1"})
	if !errors.Is(err, domain.ErrSessionVersionConflict) {
		t.Fatalf("stale Commit err = %v, want ErrSessionVersionConflict", err)
	}

	list, err := s.ListSessions(ctx, "acme", "emp-1", "2026-03-01", "2026-03-31")
	if err != nil || len(list) != 1 {
		t.Fatalf("ListSessions = %d, %v", len(list), err)
	}
}

func TestStore_ConcurrentCommits(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	key := domain.SessionKey{TenantID: "acme", EmployeeID: "emp-2", Date: "2026-03-10"}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Commit(ctx, &domain.Commit{Session: openedSession(key), TenantID: "acme", EmployeeID: "emp-2"}) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("wins = %d, want 1", wins.Load())
	}
}

func TestAPIKeyStore(t *testing.T) {
	keys := openTestStore(t).APIKeys()
	ctx := context.Background()

	key := &domain.APIKey{KeyID: "gaak-redis", SecretHash: "$argon2id$x", Role: domain.RoleDevice, TenantID: "acme"}
	if err := keys.Create(ctx, key); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := keys.Create(ctx, key); !errors.Is(err, domain.ErrAPIKeyConflict) {
		t.Fatalf("Create(dup) err = %v", err)
	}
	if err := keys.Update(ctx, &domain.APIKey{KeyID: "gaak-none"}); !errors.Is(err, domain.ErrAPIKeyNotFound) {
		t.Fatalf("Update(missing) err = %v", err)
	}
	got, err := keys.Get(ctx, "gaak-redis")
	if err != nil || got.SecretHash != key.SecretHash {
		t.Fatalf("Get = %+v, %v", got, err)
	}
	list, err := keys.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("List = %d, %v", len(list), err)
	}
}
