// Package kb holds the station catalog shared by the reduction service
// and the CLI.
package kb

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/signalsfoundry/slr-reduction/internal/sinex"
	"github.com/signalsfoundry/slr-reduction/model"
)

// ErrNotLoaded is returned by lookups before the first Load.
var ErrNotLoaded = errors.New("station catalog not loaded")

// ErrStationNotFound is returned when a key or station id has no solution.
var ErrStationNotFound = errors.New("station not found")

// EventType indicates what kind of change happened in the catalog.
type EventType int

const (
	EventCatalogLoaded EventType = iota
	EventEccentricitiesLoaded
)

func (e EventType) String() string {
	switch e {
	case EventCatalogLoaded:
		return "catalog_loaded"
	case EventEccentricitiesLoaded:
		return "eccentricities_loaded"
	default:
		return "unknown"
	}
}

// Event is emitted to subscribers after a successful load.
type Event struct {
	Type     EventType
	Source   string
	Stations int
	Records  int
	At       time.Time
}

// StationCatalog is an in-memory, thread-safe view of the current station
// solutions and eccentricity windows. Loads replace the previous state
// atomically; readers never see a mix of two files.
type StationCatalog struct {
	mu sync.RWMutex

	catalog *sinex.Catalog
	eccs    *sinex.EccentricityTable
	source  string

	nextSub int
	subs    map[int]func(Event)
}

// NewStationCatalog constructs an empty catalog.
func NewStationCatalog() *StationCatalog {
	return &StationCatalog{subs: make(map[int]func(Event))}
}

// LoadCatalog replaces the station solutions.
func (s *StationCatalog) LoadCatalog(c *sinex.Catalog, source string) error {
	if c == nil {
		return fmt.Errorf("kb: nil catalog from %q", source)
	}
	s.swap(c, source, nil, "")
	return nil
}

// LoadEccentricities replaces the eccentricity windows.
func (s *StationCatalog) LoadEccentricities(t *sinex.EccentricityTable, source string) error {
	if t == nil {
		return fmt.Errorf("kb: nil eccentricity table from %q", source)
	}
	s.swap(nil, "", t, source)
	return nil
}

// LoadFiles parses and loads a station SINEX file and, if eccPath is
// not empty, an eccentricity SINEX file. Nothing is replaced unless both
// parse, and both are replaced under one lock.
func (s *StationCatalog) LoadFiles(catalogPath, eccPath string) error {
	cat, err := parseFile(catalogPath, sinex.ParseCatalog)
	if err != nil {
		return err
	}
	var eccs *sinex.EccentricityTable
	if eccPath != "" {
		if eccs, err = parseFile(eccPath, sinex.ParseEccentricities); err != nil {
			return err
		}
	}
	s.swap(cat, catalogPath, eccs, eccPath)
	return nil
}

// swap installs whichever of cat and eccs is non-nil in one critical
// section, then notifies subscribers once the new state is visible.
func (s *StationCatalog) swap(cat *sinex.Catalog, catSource string, eccs *sinex.EccentricityTable, eccSource string) {
	now := time.Now()
	var events []Event

	s.mu.Lock()
	if cat != nil {
		s.catalog = cat
		s.source = catSource
		events = append(events, Event{Type: EventCatalogLoaded, Source: catSource, Stations: len(cat.Entries), At: now})
	}
	if eccs != nil {
		s.eccs = eccs
		events = append(events, Event{Type: EventEccentricitiesLoaded, Source: eccSource, Stations: len(eccs.Stations()), Records: eccs.Len(), At: now})
	}
	subs := s.snapshotSubs()
	s.mu.Unlock()

	for _, ev := range events {
		notify(subs, ev)
	}
}

func parseFile[T any](path string, parse func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()
	v, err := parse(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// Source returns the path or name of the loaded catalog.
func (s *StationCatalog) Source() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// Len returns the number of stations with a current solution.
func (s *StationCatalog) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.catalog == nil {
		return 0
	}
	return len(s.catalog.Entries)
}

// Entry returns the current solution for key.
func (s *StationCatalog) Entry(key model.StationKey) (model.StationCatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.catalog == nil {
		return model.StationCatalogEntry{}, ErrNotLoaded
	}
	e, ok := s.catalog.Entry(key)
	if !ok {
		return model.StationCatalogEntry{}, fmt.Errorf("%w: %s", ErrStationNotFound, key)
	}
	return e, nil
}

// EntryByStationID returns the current solution for an 8-digit id.
func (s *StationCatalog) EntryByStationID(id string) (model.StationCatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.catalog == nil {
		return model.StationCatalogEntry{}, ErrNotLoaded
	}
	e, ok := s.catalog.EntryByStationID(id)
	if !ok {
		return model.StationCatalogEntry{}, fmt.Errorf("%w: id %q", ErrStationNotFound, id)
	}
	return e, nil
}

// Site returns the SITE/ID row for key.
func (s *StationCatalog) Site(key model.StationKey) (model.SiteInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.catalog == nil {
		return model.SiteInfo{}, false
	}
	site, ok := s.catalog.Sites[key]
	return site, ok
}

// Entries returns a snapshot of every current solution in key order.
func (s *StationCatalog) Entries() []model.StationCatalogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.catalog == nil {
		return nil
	}
	keys := s.catalog.Keys()
	out := make([]model.StationCatalogEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.catalog.Entries[k])
	}
	return out
}

// Lookup finds the eccentricity valid for a station at epoch.
func (s *StationCatalog) Lookup(stationID string, epoch time.Time) (model.EccentricityRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eccs.Lookup(stationID, epoch)
}

// Subscribe registers a callback for catalog events. It returns an
// unsubscribe function.
func (s *StationCatalog) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// snapshotSubs must be called with the lock held.
func (s *StationCatalog) snapshotSubs() []func(Event) {
	out := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

// notify runs outside the lock so subscribers may read the catalog.
func notify(subs []func(Event), ev Event) {
	for _, fn := range subs {
		fn(ev)
	}
}
