package live

import (
	"errors"
	"sync"

	"github.com/goccy/go-json"
	"github.com/phuslu/log"
	"nuha.dev/hiketracker/internal/metrics"
	"nuha.dev/hiketracker/internal/store"
	"nuha.dev/hiketracker/internal/track"
)

const DefaultWindow = 200

// Store holds the live window: the tail of the latest accepted batch. Every
// Replace discards the previous window.
type Store struct {
	st     store.RecordStore
	window int
	log    log.Logger

	mu     sync.RWMutex
	pts    []track.Point
	loaded bool
}

func New(st store.RecordStore, window int) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	s := &Store{st: st, window: window}
	s.log = log.DefaultLogger
	s.log.Context = log.NewContext(nil).Str("module", "live").Value()
	return s
}

func (s *Store) Replace(pts []track.Point) error {
	tail := track.Tail(pts, s.window)
	cp := make([]track.Point, len(tail))
	copy(cp, tail)

	d, err := json.Marshal(track.Document{Points: cp})
	if err != nil {
		return &store.PersistenceError{Key: track.LiveID, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.st.Write(track.LiveID, d); err != nil {
		metrics.PersistenceErrors.WithLabelValues(metrics.RecordLive).Inc()
		s.log.Error().Err(err).Msg("unable to persist live window")
		return &store.PersistenceError{Key: track.LiveID, Err: err}
	}
	s.pts = cp
	s.loaded = true
	return nil
}

// Read returns a copy of the current window, empty if none was ever set. The
// persisted window is loaded on first use so it survives a restart.
func (s *Store) Read() []track.Point {
	s.mu.RLock()
	if s.loaded {
		pts := clone(s.pts)
		s.mu.RUnlock()
		return pts
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		s.pts = s.load()
		s.loaded = true
	}
	return clone(s.pts)
}

func clone(pts []track.Point) []track.Point {
	cp := make([]track.Point, len(pts))
	copy(cp, pts)
	return cp
}

func (s *Store) load() []track.Point {
	d, err := s.st.Read(track.LiveID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			metrics.CorruptRecords.WithLabelValues(metrics.RecordLive).Inc()
			s.log.Warn().Err(err).Msg("unable to read live window")
		}
		return []track.Point{}
	}
	doc := track.Document{}
	if err := json.Unmarshal(d, &doc); err != nil {
		metrics.CorruptRecords.WithLabelValues(metrics.RecordLive).Inc()
		s.log.Warn().Err(err).Msg("corrupt live window, treating as empty")
		return []track.Point{}
	}
	return track.Tail(doc.Points, s.window)
}
