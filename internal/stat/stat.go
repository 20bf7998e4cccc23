package stat

import (
	"sync"
	"time"
)

// counter is one minute bucket of received points.
type counter struct {
	base time.Time
	cnt  uint64
}

// time_event is a fixed ring of the most recent event times.
type time_event struct {
	list [10]time.Time
	idx  int
	n    int
	mu   sync.Mutex
}

// Stat keeps the last few upload, ping and reject times and a per-minute
// count of received points for the monitoring endpoint.
type Stat struct {
	upload time_event
	ping   time_event
	reject time_event
	mu     sync.Mutex
	buf    [100]counter
	phead  int
	dur    time.Duration

	created time.Time
}

// MinuteCount is the number of points accepted during the minute starting at
// Minute.
type MinuteCount struct {
	Minute time.Time `json:"minute"`
	Points uint64    `json:"points"`
}

// Snapshot is the view served on /stat. Event times and minute buckets are
// newest first.
type Snapshot struct {
	Created time.Time     `json:"created"`
	Uploads []time.Time   `json:"uploads"`
	Pings   []time.Time   `json:"pings"`
	Rejects []time.Time   `json:"rejects"`
	Points  []MinuteCount `json:"points_per_minute"`
}

func NewStat() *Stat {
	o := &Stat{}
	o.dur = time.Minute
	o.created = time.Now()
	return o
}

// UploadEv, PingEv and RejectEv log an accepted upload, a ping and a rejected
// upload.
func (s *Stat) UploadEv(t time.Time) {
	log(&s.upload, t)
}
func (s *Stat) PingEv(t time.Time) {
	log(&s.ping, t)
}
func (s *Stat) RejectEv(t time.Time) {
	log(&s.reject, t)
}

func log(l *time_event, t time.Time) {
	l.mu.Lock()
	l.list[l.idx] = t
	l.idx = l.idx + 1
	if l.idx == len(l.list) {
		l.idx = 0
	}
	if l.n < len(l.list) {
		l.n = l.n + 1
	}
	l.mu.Unlock()
}

// recent returns the logged times, newest first.
func recent(l *time_event) []time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]time.Time, 0, l.n)
	for i := 1; i <= l.n; i++ {
		j := (l.idx - i + len(l.list)) % len(l.list)
		out = append(out, l.list[j])
	}
	return out
}

// CounterIncr adds amt to the bucket of the minute t falls in. Times older than
// the current bucket are dropped.
func (s *Stat) CounterIncr(amt uint64, t time.Time) {
	s.mu.Lock()
	f := t.Truncate(s.dur)
	last := &s.buf[s.phead]
	if f.After(last.base) {
		if last.cnt != 0 {
			s.phead = s.phead + 1
			if s.phead == len(s.buf) {
				s.phead = 0
			}
		}
		s.buf[s.phead].base = f
		s.buf[s.phead].cnt = amt
	} else if f.Equal(last.base) {
		last.cnt = last.cnt + amt
	}
	s.mu.Unlock()
}

// Snapshot copies the current state. Empty buckets end the minute list.
func (s *Stat) Snapshot() Snapshot {
	snap := Snapshot{Created: s.created}
	snap.Uploads = recent(&s.upload)
	snap.Pings = recent(&s.ping)
	snap.Rejects = recent(&s.reject)
	s.mu.Lock()
	snap.Points = make([]MinuteCount, 0, len(s.buf))
	for i := 0; i < len(s.buf); i++ {
		j := (s.phead - i + len(s.buf)) % len(s.buf)
		c := s.buf[j]
		if c.base.IsZero() {
			break
		}
		snap.Points = append(snap.Points, MinuteCount{Minute: c.base, Points: c.cnt})
	}
	s.mu.Unlock()
	return snap
}
