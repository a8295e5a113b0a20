package kb

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/slr-reduction/model"
)

const (
	catalogFixture = "../internal/sinex/testdata/slrf_small.snx"
	eccFixture     = "../internal/sinex/testdata/ecc_xyz.snx"
	eccUNEFixture  = "../internal/sinex/testdata/ecc_une.snx"
)

func TestLookupsBeforeLoad(t *testing.T) {
	store := NewStationCatalog()
	if _, err := store.EntryByStationID("78393402"); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("EntryByStationID error = %v, want ErrNotLoaded", err)
	}
	if _, ok := store.Lookup("78393402", time.Now()); ok {
		t.Fatalf("Lookup on empty catalog reported a record")
	}
	if store.Len() != 0 || store.Entries() != nil {
		t.Fatalf("empty catalog reports entries")
	}
}

func TestLoadFilesAndQuery(t *testing.T) {
	store := NewStationCatalog()
	if err := store.LoadFiles(catalogFixture, eccFixture); err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	if store.Len() != 2 || store.Source() != catalogFixture {
		t.Fatalf("Len=%d Source=%q", store.Len(), store.Source())
	}

	entries := store.Entries()
	if len(entries) != 2 || entries[0].Key.Code != 7090 || entries[1].Key.Code != 7839 {
		t.Fatalf("entries not in key order: %+v", entries)
	}
	graz, err := store.Entry(model.StationKey{Code: 7839, PlacementTag: 'A'})
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if graz.Solution != 2 || graz.StationID != "78393402" {
		t.Fatalf("graz = %+v, want solution 2", graz)
	}
	if site, ok := store.Site(graz.Key); !ok || site.DOMES != "11001S002" {
		t.Fatalf("site = %+v", site)
	}

	rec, ok := store.Lookup("78393402", time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC))
	if !ok || rec.Offset.X != -0.0405 {
		t.Fatalf("Lookup = %+v, %v", rec, ok)
	}
	if _, err := store.EntryByStationID("12345678"); err == nil {
		t.Fatalf("expected error for unknown station id")
	}
}

func TestLoadFilesIsAllOrNothing(t *testing.T) {
	store := NewStationCatalog()
	if err := store.LoadFiles(catalogFixture, "testdata/missing.snx"); err == nil {
		t.Fatalf("expected error for missing eccentricity file")
	}
	if store.Len() != 0 {
		t.Fatalf("catalog replaced despite failed load")
	}
}

func TestSubscribeReceivesLoadEvents(t *testing.T) {
	store := NewStationCatalog()

	var (
		mu     sync.Mutex
		events []Event
	)
	unsubscribe := store.Subscribe(func(ev Event) {
		// Subscribers run outside the lock and may read back.
		_ = store.Len()
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	if err := store.LoadFiles(catalogFixture, eccFixture); err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	mu.Lock()
	got := append([]Event(nil), events...)
	mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("events = %d, want 2", len(got))
	}
	if got[0].Type != EventCatalogLoaded || got[0].Stations != 2 {
		t.Fatalf("first event = %+v", got[0])
	}
	if got[1].Type != EventEccentricitiesLoaded || got[1].Records != 4 || got[1].Stations != 3 {
		t.Fatalf("second event = %+v", got[1])
	}

	unsubscribe()
	if err := store.LoadFiles(catalogFixture, ""); err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("events after unsubscribe = %d, want 2", len(events))
	}
}

func TestConcurrentReadsDuringLoad(t *testing.T) {
	store := NewStationCatalog()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = store.Entries()
				_, _ = store.Lookup("70900513", time.Now())
			}
		}()
	}
	for i := 0; i < 5; i++ {
		if err := store.LoadFiles(catalogFixture, eccFixture); err != nil {
			t.Fatalf("LoadFiles: %v", err)
		}
	}
	wg.Wait()
}

func TestReloadSwapsCatalogAndEccentricitiesTogether(t *testing.T) {
	store := NewStationCatalog()
	if err := store.LoadFiles(catalogFixture, eccFixture); err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}

	at := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	var frames []model.FrameTag
	unsubscribe := store.Subscribe(func(ev Event) {
		rec, ok := store.Lookup("78393402", at)
		if !ok {
			t.Errorf("%s: no eccentricity for 78393402", ev.Type)
			return
		}
		frames = append(frames, rec.Frame)
	})
	defer unsubscribe()

	if err := store.LoadFiles(catalogFixture, eccUNEFixture); err != nil {
		t.Fatalf("reload: %v", err)
	}
	// Both events fire after the swap, so neither sees the old table.
	if len(frames) != 2 {
		t.Fatalf("events = %d, want 2", len(frames))
	}
	for i, f := range frames {
		if f != model.FrameENU {
			t.Fatalf("event %d saw frame %v, want the reloaded ENU table", i, f)
		}
	}
}
