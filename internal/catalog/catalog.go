package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/phuslu/log"
	"nuha.dev/hiketracker/internal/metrics"
	"nuha.dev/hiketracker/internal/store"
	"nuha.dev/hiketracker/internal/track"
)

var ErrInvalidPartitionID = errors.New("invalid partition id")

// Catalog lists archived partitions. Entries are derived on every call and
// never stored.
type Catalog struct {
	st  store.RecordStore
	log log.Logger
}

func New(st store.RecordStore) *Catalog {
	c := &Catalog{st: st}
	c.log = log.DefaultLogger
	c.log.Context = log.NewContext(nil).Str("module", "catalog").Value()
	return c
}

// List returns one entry per non-empty partition ordered by id. Partitions
// that fail to decode are skipped and counted.
func (c *Catalog) List() ([]track.CatalogEntry, error) {
	keys, err := c.st.Keys()
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	sort.Strings(keys)
	entries := make([]track.CatalogEntry, 0, len(keys))
	for _, key := range keys {
		if track.IsReserved(key) {
			continue
		}
		entry, ok := c.entry(key)
		if ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (c *Catalog) entry(key string) (track.CatalogEntry, bool) {
	d, err := c.st.Read(key)
	if err != nil {
		metrics.CatalogSkipped.Inc()
		c.log.Warn().Err(err).Str("partition", key).Msg("unable to read partition, skipped")
		return track.CatalogEntry{}, false
	}
	doc := track.Document{}
	if err := json.Unmarshal(d, &doc); err != nil {
		metrics.CatalogSkipped.Inc()
		c.log.Warn().Err(err).Str("partition", key).Msg("corrupt partition, skipped")
		return track.CatalogEntry{}, false
	}
	lat, lon, ok := track.Centroid(doc.Points)
	if !ok {
		return track.CatalogEntry{}, false
	}
	return track.CatalogEntry{
		Id:     key,
		File:   key + track.FileExt,
		Name:   track.DisplayName(key),
		Lat:    lat,
		Lon:    lon,
		Points: len(doc.Points),
	}, true
}

// ParseID accepts either a bare key or key.json and rejects anything that is
// not a single flat identifier.
func ParseID(id string) (string, error) {
	key := strings.TrimSuffix(id, track.FileExt)
	if !store.ValidKey(key) {
		return "", ErrInvalidPartitionID
	}
	return key, nil
}

// Read returns the stored bytes of a record unchanged.
func (c *Catalog) Read(id string) ([]byte, error) {
	key, err := ParseID(id)
	if err != nil {
		c.log.Warn().Str("id", id).Msg("rejected partition id")
		return nil, err
	}
	return c.st.Read(key)
}
