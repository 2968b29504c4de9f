package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/relay/pkg/networkusage"
)

func newSQLite(t *testing.T, driver string) *SQLiteStorage {
	t.Helper()
	cfg := DefaultSQLiteConfig()
	cfg.Path = filepath.Join(t.TempDir(), "usage.db")
	cfg.Driver = driver

	s, err := NewSQLiteStorage(cfg)
	if err != nil {
		t.Fatalf("NewSQLiteStorage() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// backends returns every Storage implementation under test.
func backends(t *testing.T) map[string]networkusage.Storage {
	return map[string]networkusage.Storage{
		"memory":  NewMemoryStorage(),
		"sqlite":  newSQLite(t, DriverPureGo),
		"sqlite3": newSQLite(t, DriverCGO),
	}
}

func httpEntity(t *testing.T, url string, status networkusage.Status, size int64, at time.Time) *networkusage.Entity {
	t.Helper()
	d, err := networkusage.NewHTTPConnectionDetails(`https://.*`, "com.example.app")
	if err != nil {
		t.Fatalf("NewHTTPConnectionDetails() failed: %v", err)
	}
	e, err := networkusage.NewHTTPEntity(d, status, size, url, networkusage.WithCreationTime(at))
	if err != nil {
		t.Fatalf("NewHTTPEntity() failed: %v", err)
	}
	return e
}

func TestStorage_StoreAndQuery(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first := httpEntity(t, "https://a/1", networkusage.StatusSucceeded, 100, base)
			second := httpEntity(t, "https://a/2", networkusage.StatusFailed, 7, base.Add(time.Minute))
			pd, _ := networkusage.NewPDConnectionDetails("client-1", "com.example.pd")
			third, _ := networkusage.NewPDEntity(pd, networkusage.StatusSucceeded, 5, 9,
				networkusage.WithCreationTime(base.Add(2*time.Minute)))

			for _, e := range []*networkusage.Entity{first, second, third} {
				if err := s.Store(ctx, e); err != nil {
					t.Fatalf("Store() failed: %v", err)
				}
			}
			if first.ID == 0 || second.ID <= first.ID {
				t.Errorf("IDs not assigned in sequence: %d, %d", first.ID, second.ID)
			}

			all, err := s.Query(ctx, nil)
			if err != nil {
				t.Fatalf("Query() failed: %v", err)
			}
			if len(all) != 3 || all[0].ConnectionDetails.Type != networkusage.ConnectionTypePD {
				t.Fatalf("Query() = %d records, first %+v", len(all), all[0])
			}
			if all[0].UploadSize != 9 || all[0].ConnectionDetails.Key.ClientID != "client-1" {
				t.Errorf("PD record = %+v", all[0])
			}

			httpType := networkusage.ConnectionTypeHTTP
			failed, err := s.Query(ctx, &networkusage.Query{Type: &httpType, Status: networkusage.StatusFailed})
			if err != nil {
				t.Fatalf("Query(failed) failed: %v", err)
			}
			if len(failed) != 1 || failed[0].URL != "https://a/2" || failed[0].DownloadSize != 7 {
				t.Errorf("Query(failed) = %+v", failed)
			}
			if failed[0].FCRunID != networkusage.NoRunID {
				t.Errorf("FCRunID = %d", failed[0].FCRunID)
			}
			if !failed[0].CreationTime.Equal(base.Add(time.Minute)) {
				t.Errorf("CreationTime = %v", failed[0].CreationTime)
			}

			since := base.Add(30 * time.Second)
			asc, err := s.Query(ctx, &networkusage.Query{Since: &since, SortOrder: "asc", Limit: 1})
			if err != nil {
				t.Fatalf("Query(since) failed: %v", err)
			}
			if len(asc) != 1 || asc[0].URL != "https://a/2" {
				t.Errorf("Query(since, asc, limit 1) = %+v", asc)
			}

			n, err := s.Count(ctx, &networkusage.Query{PackageName: "com.example.app"})
			if err != nil || n != 2 {
				t.Errorf("Count(package) = %d, %v", n, err)
			}
		})
	}
}

func TestStorage_DeleteBefore(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				e := httpEntity(t, "https://a/x", networkusage.StatusSucceeded, 1, base.AddDate(0, 0, i))
				if err := s.Store(ctx, e); err != nil {
					t.Fatalf("Store() failed: %v", err)
				}
			}

			n, err := s.DeleteBefore(ctx, base.AddDate(0, 0, 3))
			if err != nil {
				t.Fatalf("DeleteBefore() failed: %v", err)
			}
			if n != 3 {
				t.Errorf("DeleteBefore() = %d, want 3", n)
			}
			if left, _ := s.Count(ctx, nil); left != 2 {
				t.Errorf("Count() after delete = %d, want 2", left)
			}
		})
	}
}

func TestStorage_FederatedPolicyRoundTrip(t *testing.T) {
	s := newSQLite(t, DriverPureGo)
	ctx := context.Background()

	d, _ := networkusage.NewFCTrainingStartQueryConnectionDetails("smart_reply", "com.example.app")
	e, _ := networkusage.NewFCTrainingStartQueryEntity(d, 42, []byte{0x0a, 0x01})
	if err := s.Store(ctx, e); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}

	got, err := s.Query(ctx, nil)
	if err != nil || len(got) != 1 {
		t.Fatalf("Query() = %v, %v", got, err)
	}
	if got[0].FCRunID != 42 || len(got[0].PolicyProto) != 2 || got[0].ConnectionDetails.Key.FeatureName != "smart_reply" {
		t.Errorf("record = %+v", got[0])
	}
}

func TestNewSQLiteStorage_UnknownDriver(t *testing.T) {
	cfg := DefaultSQLiteConfig()
	cfg.Path = filepath.Join(t.TempDir(), "x.db")
	cfg.Driver = "postgres"

	_, err := NewSQLiteStorage(cfg)
	var se *networkusage.StorageError
	if !errors.As(err, &se) || se.Operation != "open" {
		t.Errorf("NewSQLiteStorage() error = %v", err)
	}
}

func TestMemoryStorage_StoreAfterClose(t *testing.T) {
	s := NewMemoryStorage()
	s.Close()
	e := httpEntity(t, "https://a/x", networkusage.StatusSucceeded, 1, time.Now())
	if err := s.Store(context.Background(), e); err == nil {
		t.Error("Store() after Close succeeded")
	}
}
