// Package heartbeat tracks the last time the tracker was heard from. Uploads
// and explicit pings are separate signals kept in separate records.
package heartbeat

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/phuslu/log"
	"nuha.dev/hiketracker/internal/metrics"
	"nuha.dev/hiketracker/internal/store"
	"nuha.dev/hiketracker/internal/track"
)

type Color string

const (
	Green  Color = "green"
	Orange Color = "orange"
	Red    Color = "red"
)

const (
	GreenMaxAge    = 45 // minutes
	OrangeMaxAge   = 90 // minutes
	UploadInterval = 30 // minutes
	AliveWindow    = 5 * time.Minute
)

type UploadStatus struct {
	AgeMin  *int  `json:"age_min"`
	NextMin *int  `json:"next_min"`
	Color   Color `json:"color"`
}

type PingStatus struct {
	Alive        bool `json:"alive"`
	SinceSeconds *int `json:"since_seconds"`
}

type beat struct {
	st     store.RecordStore
	key    string
	metric string
	log    log.Logger
	mu     sync.Mutex
}

func newBeat(st store.RecordStore, key, metric string) *beat {
	b := &beat{st: st, key: key, metric: metric}
	b.log = log.DefaultLogger
	b.log.Context = log.NewContext(nil).Str("module", "heartbeat").Str("record", key).Value()
	return b
}

func (b *beat) record(now time.Time) error {
	d, err := json.Marshal(track.Beat{Ts: now.UTC()})
	if err != nil {
		return &store.PersistenceError{Key: b.key, Err: err}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.st.Write(b.key, d); err != nil {
		metrics.PersistenceErrors.WithLabelValues(b.metric).Inc()
		return &store.PersistenceError{Key: b.key, Err: err}
	}
	return nil
}

// last returns the stored timestamp. A missing or unreadable record reports
// ok=false, unreadable ones are logged and counted.
func (b *beat) last() (time.Time, bool) {
	b.mu.Lock()
	d, err := b.st.Read(b.key)
	b.mu.Unlock()
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			metrics.CorruptRecords.WithLabelValues(b.metric).Inc()
			b.log.Warn().Err(err).Msg("unable to read heartbeat record")
		}
		return time.Time{}, false
	}
	rec := track.Beat{}
	if err := json.Unmarshal(d, &rec); err != nil || rec.Ts.IsZero() {
		metrics.CorruptRecords.WithLabelValues(b.metric).Inc()
		b.log.Warn().Err(err).Int("bytes", len(d)).Msg("corrupt heartbeat record, treating as absent")
		return time.Time{}, false
	}
	return rec.Ts, true
}

func age(now, then time.Time) time.Duration {
	d := now.Sub(then)
	if d < 0 {
		return 0
	}
	return d
}

// Upload is refreshed by every accepted upload.
type Upload struct {
	*beat
}

func NewUpload(st store.RecordStore) *Upload {
	return &Upload{beat: newBeat(st, track.HeartbeatID, metrics.RecordHeartbeat)}
}

func (u *Upload) Record(now time.Time) error {
	return u.record(now)
}

func (u *Upload) Query(now time.Time) UploadStatus {
	ts, ok := u.last()
	if !ok {
		return UploadStatus{Color: Red}
	}
	return Classify(int(math.Floor(age(now, ts).Minutes())))
}

// Classify maps an age in whole minutes to its status.
func Classify(ageMin int) UploadStatus {
	next := UploadInterval - ageMin
	if next < 0 {
		next = 0
	}
	st := UploadStatus{AgeMin: &ageMin, NextMin: &next}
	switch {
	case ageMin <= GreenMaxAge:
		st.Color = Green
	case ageMin <= OrangeMaxAge:
		st.Color = Orange
	default:
		st.Color = Red
	}
	return st
}

// Ping is refreshed only by explicit no-payload pings.
type Ping struct {
	*beat
}

func NewPing(st store.RecordStore) *Ping {
	return &Ping{beat: newBeat(st, track.PingID, metrics.RecordPing)}
}

func (p *Ping) Record(now time.Time) error {
	return p.record(now)
}

func (p *Ping) Query(now time.Time) PingStatus {
	ts, ok := p.last()
	if !ok {
		return PingStatus{}
	}
	a := age(now, ts)
	secs := int(a / time.Second)
	return PingStatus{Alive: a < AliveWindow, SinceSeconds: &secs}
}
