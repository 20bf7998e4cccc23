package archive

import (
	"errors"
	"sync"

	"github.com/goccy/go-json"
	"github.com/phuslu/log"
	"nuha.dev/hiketracker/internal/metrics"
	"nuha.dev/hiketracker/internal/store"
	"nuha.dev/hiketracker/internal/track"
)

const DefaultCap = 100000

type Config struct {
	// Cap is the most points a single partition may hold. Older points are
	// dropped first once it is exceeded.
	Cap int
}

// Archive appends accepted points to day partitions. Each partition has its
// own lock held across the whole read-modify-write.
type Archive struct {
	st     store.RecordStore
	config Config
	log    log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(st store.RecordStore, config *Config) *Archive {
	a := &Archive{st: st}
	if config != nil {
		a.config = *config
	}
	if a.config.Cap <= 0 {
		a.config.Cap = DefaultCap
	}
	a.log = log.DefaultLogger
	a.log.Context = log.NewContext(nil).Str("module", "archive").Value()
	a.locks = make(map[string]*sync.Mutex)
	return a
}

func (a *Archive) lock(key string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[key]
	if !ok {
		l = &sync.Mutex{}
		a.locks[key] = l
	}
	return l
}

// Append adds pts to the end of partition key and returns its new size.
func (a *Archive) Append(key string, pts []track.Point) (int, error) {
	l := a.lock(key)
	l.Lock()
	defer l.Unlock()

	existing := a.load(key)
	merged := make([]track.Point, 0, len(existing)+len(pts))
	merged = append(merged, existing...)
	merged = append(merged, pts...)
	if evicted := len(merged) - a.config.Cap; evicted > 0 {
		merged = merged[evicted:]
		metrics.ArchiveEvicted.Add(float64(evicted))
		a.log.Info().Str("partition", key).Int("evicted", evicted).Int("cap", a.config.Cap).Msg("partition over cap, oldest points dropped")
	}

	d, err := json.Marshal(track.Document{Points: merged})
	if err != nil {
		return 0, &store.PersistenceError{Key: key, Err: err}
	}
	if err := a.st.Write(key, d); err != nil {
		metrics.PersistenceErrors.WithLabelValues(metrics.RecordPartition).Inc()
		a.log.Error().Err(err).Str("partition", key).Int("points", len(pts)).Msg("unable to persist partition")
		return 0, &store.PersistenceError{Key: key, Err: err}
	}
	return len(merged), nil
}

// Load returns the points of partition key, empty when it does not exist or
// cannot be decoded.
func (a *Archive) Load(key string) []track.Point {
	l := a.lock(key)
	l.Lock()
	defer l.Unlock()
	return a.load(key)
}

func (a *Archive) load(key string) []track.Point {
	d, err := a.st.Read(key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			metrics.CorruptRecords.WithLabelValues(metrics.RecordPartition).Inc()
			a.log.Warn().Err(err).Str("partition", key).Msg("unable to read partition, starting fresh")
		}
		return nil
	}
	doc := track.Document{}
	if err := json.Unmarshal(d, &doc); err != nil {
		metrics.CorruptRecords.WithLabelValues(metrics.RecordPartition).Inc()
		a.log.Warn().Err(err).Str("partition", key).Int("bytes", len(d)).Msg("corrupt partition, starting fresh")
		return nil
	}
	return doc.Points
}
