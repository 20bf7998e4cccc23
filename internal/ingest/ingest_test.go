package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"nuha.dev/hiketracker/internal/archive"
	"nuha.dev/hiketracker/internal/catalog"
	"nuha.dev/hiketracker/internal/heartbeat"
	"nuha.dev/hiketracker/internal/ingest/validate"
	"nuha.dev/hiketracker/internal/store"
	"nuha.dev/hiketracker/internal/store/storetest"
	"nuha.dev/hiketracker/internal/track"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newService(t *testing.T, cfg *Config) (*Service, *storetest.Faulty, *clock) {
	t.Helper()
	st := storetest.NewFaulty()
	c := &clock{t: time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)}
	if cfg == nil {
		cfg = &Config{MaxBatch: 1000, ArchiveCap: 100000, LiveWindow: 200}
	}
	return NewService(&Deps{Store: st, Now: c.Now}, cfg), st, c
}

func body(n int, extra string) []byte {
	pts := make([]string, n)
	for i := range pts {
		pts[i] = fmt.Sprintf(`{"lat":%d,"lon":%d}`, i%90, i%180)
	}
	return []byte(`{"points":[` + strings.Join(pts, ",") + `]` + extra + `}`)
}

func TestUploadExample(t *testing.T) {
	s, _, _ := newService(t, nil)
	res, err := s.Upload(context.Background(), []byte(`{"points":[{"lat":45.0,"lon":7.0}],"batch_id":3}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != "ok" || res.AckBatch != 3 || res.Received != 1 {
		t.Errorf("got %+v", res)
	}
	entries, err := s.Catalog()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Id != "2026_10_15" {
		t.Fatalf("got %+v", entries)
	}
	if math.Abs(entries[0].Lat-45) > 1e-9 || math.Abs(entries[0].Lon-7) > 1e-9 {
		t.Errorf("centroid %+v", entries[0])
	}
}

func TestUploadWithoutBatchID(t *testing.T) {
	s, _, _ := newService(t, nil)
	res, err := s.Upload(context.Background(), body(2, ""))
	if err != nil || res.AckBatch != track.NoBatchID {
		t.Errorf("got %+v %v", res, err)
	}
}

func TestUploadNonIntegerBatchIDStillStored(t *testing.T) {
	s, _, _ := newService(t, nil)
	for _, extra := range []string{`,"batch_id":3.5`, `,"batch_id":"7"`} {
		res, err := s.Upload(context.Background(), body(1, extra))
		if err != nil {
			t.Fatalf("%s: %v", extra, err)
		}
		if res.AckBatch != track.NoBatchID || res.Received != 1 {
			t.Errorf("%s: got %+v", extra, res)
		}
	}
	entries, _ := s.Catalog()
	if len(entries) != 1 || entries[0].Points != 2 {
		t.Errorf("points not archived: %+v", entries)
	}
}

func TestUploadGrowsPartition(t *testing.T) {
	s, _, _ := newService(t, nil)
	total := 0
	for _, n := range []int{3, 7, 1} {
		res, err := s.Upload(context.Background(), body(n, ""))
		if err != nil {
			t.Fatal(err)
		}
		total += n
		if res.Stored != total {
			t.Errorf("stored %d, want %d", res.Stored, total)
		}
	}
	entries, _ := s.Catalog()
	if entries[0].Points != total {
		t.Errorf("catalog reports %d points", entries[0].Points)
	}
}

func TestBatchTooLargeDoesNotMutate(t *testing.T) {
	s, st, _ := newService(t, &Config{MaxBatch: 5})
	_, err := s.Upload(context.Background(), body(6, ""))
	if !errors.Is(err, validate.ErrBatchTooLarge) {
		t.Fatalf("got %v", err)
	}
	if StatusCode(err) != http.StatusRequestEntityTooLarge {
		t.Errorf("status %d", StatusCode(err))
	}
	if st.Writes() != 0 {
		t.Errorf("%d writes after rejected batch", st.Writes())
	}
	if s.Status().Color != heartbeat.Red {
		t.Error("rejected batch refreshed heartbeat")
	}
}

func TestLiveWindowFollowsLatestBatch(t *testing.T) {
	s, _, _ := newService(t, nil)
	_, _ = s.Upload(context.Background(), body(300, ""))
	if got := s.Live(); len(got) != 200 || got[0].Lat != float64(100%90) {
		t.Errorf("live window after 300 points: %d", len(got))
	}
	_, _ = s.Upload(context.Background(), []byte(`{"points":[{"lat":1.5,"lon":2.5}]}`))
	got := s.Live()
	if len(got) != 1 || got[0].Lat != 1.5 {
		t.Errorf("live window not replaced: %+v", got)
	}
}

func TestArchiveFailureAfterLiveUpdate(t *testing.T) {
	s, st, _ := newService(t, nil)
	fail := &archiveFailer{Faulty: st}
	s.archive = newArchiveOn(fail)
	_, err := s.Upload(context.Background(), body(2, ""))
	if !store.IsPersistence(err) || StatusCode(err) != http.StatusInternalServerError {
		t.Fatalf("got %v", err)
	}
	if len(s.Live()) != 2 {
		t.Error("live window should reflect the batch even though archive failed")
	}
	if s.Status().Color != heartbeat.Red {
		t.Error("heartbeat must not be refreshed on failed upload")
	}
}

func TestStatusAfterUpload(t *testing.T) {
	s, _, c := newService(t, nil)
	if st := s.Status(); st.Color != heartbeat.Red || st.AgeMin != nil {
		t.Errorf("before any upload: %+v", st)
	}
	_, _ = s.Upload(context.Background(), body(1, ""))
	c.Advance(44 * time.Minute)
	if st := s.Status(); st.Color != heartbeat.Green {
		t.Errorf("44m: %+v", st)
	}
	c.Advance(2 * time.Minute)
	if st := s.Status(); st.Color != heartbeat.Orange {
		t.Errorf("46m: %+v", st)
	}
	c.Advance(45 * time.Minute)
	if st := s.Status(); st.Color != heartbeat.Red || *st.AgeMin != 91 {
		t.Errorf("91m: %+v", st)
	}
}

func TestPing(t *testing.T) {
	s, _, c := newService(t, nil)
	if st := s.PingStatus(); st.Alive {
		t.Error("alive before any ping")
	}
	if err := s.Ping(); err != nil {
		t.Fatal(err)
	}
	c.Advance(time.Minute)
	if st := s.PingStatus(); !st.Alive || *st.SinceSeconds != 60 {
		t.Errorf("got %+v", st)
	}
	if st := s.Status(); st.AgeMin != nil {
		t.Error("ping refreshed upload heartbeat")
	}
}

func TestPingFailure(t *testing.T) {
	s, st, _ := newService(t, nil)
	st.FailWrites(true)
	if err := s.Ping(); StatusCode(err) != http.StatusInternalServerError {
		t.Errorf("got %v", err)
	}
}

func TestDayRollover(t *testing.T) {
	s, _, c := newService(t, nil)
	_, _ = s.Upload(context.Background(), body(2, ""))
	c.Advance(24 * time.Hour)
	_, _ = s.Upload(context.Background(), body(3, ""))
	entries, _ := s.Catalog()
	if len(entries) != 2 || entries[0].Points != 2 || entries[1].Id != "2026_10_16" {
		t.Errorf("got %+v", entries)
	}
}

func TestReadPartition(t *testing.T) {
	s, _, _ := newService(t, nil)
	_, _ = s.Upload(context.Background(), []byte(`{"points":[{"lat":1,"lon":2,"acc":5}]}`))
	d, err := s.ReadPartition("2026_10_15.json")
	if err != nil || string(d) != `{"points":[{"lat":1,"lon":2,"acc":5}]}` {
		t.Errorf("got %q %v", d, err)
	}
	_, err = s.ReadPartition("../../etc/passwd")
	if !errors.Is(err, catalog.ErrInvalidPartitionID) || StatusCode(err) != http.StatusBadRequest {
		t.Errorf("got %v", err)
	}
	if _, err = s.ReadPartition("1999_01_01"); StatusCode(err) != http.StatusNotFound {
		t.Errorf("got %v", err)
	}
}

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{validate.ErrMalformedPayload, http.StatusBadRequest},
		{validate.ErrMissingPoints, http.StatusBadRequest},
		{validate.ErrEmptyBatch, http.StatusBadRequest},
		{catalog.ErrInvalidPartitionID, http.StatusBadRequest},
		{validate.ErrBatchTooLarge, http.StatusRequestEntityTooLarge},
		{store.ErrNotFound, http.StatusNotFound},
		{errors.New("other"), http.StatusInternalServerError},
		{&store.PersistenceError{Key: "k", Err: errors.New("x")}, http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := StatusCode(c.err); got != c.want {
			t.Errorf("%v: %d, want %d", c.err, got, c.want)
		}
	}
}

// archiveFailer fails writes to data partitions only.
type archiveFailer struct {
	*storetest.Faulty
}

func (a *archiveFailer) Write(key string, d []byte) error {
	if !track.IsReserved(key) {
		return storetest.ErrInjected
	}
	return a.Faulty.Write(key, d)
}

func newArchiveOn(st store.RecordStore) *archive.Archive {
	return archive.New(st, nil)
}
