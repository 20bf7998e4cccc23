package logstore

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"nuha.dev/hiketracker/internal/store"
)

// LogStore keeps records in memory and logs every write. Nothing survives a
// restart, it is meant for dry runs and tests.
type LogStore struct {
	mu     sync.RWMutex
	recs   map[string][]byte
	logger zerolog.Logger
}

func NewStore() *LogStore {
	return &LogStore{
		recs:   make(map[string][]byte),
		logger: log.With().Str("module", "logstore").Logger(),
	}
}

func (l *LogStore) Read(key string) ([]byte, error) {
	if !store.ValidKey(key) {
		return nil, store.ErrInvalidKey
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.recs[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), d...), nil
}

func (l *LogStore) Write(key string, data []byte) error {
	if !store.ValidKey(key) {
		return store.ErrInvalidKey
	}
	l.mu.Lock()
	l.recs[key] = append([]byte(nil), data...)
	l.mu.Unlock()
	l.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("record written")
	return nil
}

func (l *LogStore) Keys() ([]string, error) {
	l.mu.RLock()
	keys := make([]string, 0, len(l.recs))
	for k := range l.recs {
		keys = append(keys, k)
	}
	l.mu.RUnlock()
	sort.Strings(keys)
	return keys, nil
}

func (l *LogStore) Close() error {
	return nil
}
