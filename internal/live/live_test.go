package live

import (
	"testing"

	"nuha.dev/hiketracker/internal/store"
	"nuha.dev/hiketracker/internal/store/storetest"
	"nuha.dev/hiketracker/internal/track"
)

func batch(from, n int) []track.Point {
	pts := make([]track.Point, n)
	for i := range pts {
		pts[i] = track.NewPoint(0, float64(from+i))
	}
	return pts
}

func TestReadEmpty(t *testing.T) {
	s := New(storetest.NewFaulty(), 0)
	if got := s.Read(); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil window, got %v", got)
	}
}

func TestReplaceIsNotAppend(t *testing.T) {
	s := New(storetest.NewFaulty(), 200)
	_ = s.Replace(batch(0, 50))
	if err := s.Replace(batch(100, 3)); err != nil {
		t.Fatal(err)
	}
	got := s.Read()
	if len(got) != 3 || got[0].Lon != 100 {
		t.Errorf("window not replaced: %v", got)
	}
}

func TestWindowTruncates(t *testing.T) {
	s := New(storetest.NewFaulty(), 200)
	_ = s.Replace(batch(0, 250))
	got := s.Read()
	if len(got) != 200 || got[0].Lon != 50 || got[199].Lon != 249 {
		t.Errorf("expected last 200 points, got %d starting at %v", len(got), got[0].Lon)
	}
}

func TestReloadAfterRestart(t *testing.T) {
	st := storetest.NewFaulty()
	_ = New(st, 200).Replace(batch(0, 5))
	got := New(st, 200).Read()
	if len(got) != 5 || got[4].Lon != 4 {
		t.Errorf("window not reloaded: %v", got)
	}
}

func TestCorruptWindowReadsEmpty(t *testing.T) {
	st := storetest.NewFaulty()
	_ = st.Write(track.LiveID, []byte("garbage"))
	if got := New(st, 200).Read(); len(got) != 0 {
		t.Errorf("got %v", got)
	}
}

func TestReplaceFailureKeepsOldWindow(t *testing.T) {
	st := storetest.NewFaulty()
	s := New(st, 200)
	_ = s.Replace(batch(0, 2))
	st.FailWrites(true)
	if err := s.Replace(batch(10, 2)); !store.IsPersistence(err) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if got := s.Read(); got[0].Lon != 0 {
		t.Errorf("window changed after failed write: %v", got)
	}
}

func TestReadReturnsCopy(t *testing.T) {
	s := New(storetest.NewFaulty(), 200)
	_ = s.Replace(batch(0, 3))
	got := s.Read()
	got[0] = track.NewPoint(89, 179)
	_ = append(got[:1], got[2:]...)
	again := s.Read()
	if len(again) != 3 || again[0].Lon != 0 || again[1].Lon != 1 {
		t.Errorf("caller mutated the live window: %v", again)
	}
}
