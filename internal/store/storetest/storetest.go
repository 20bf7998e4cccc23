// Package storetest provides record store doubles for tests.
package storetest

import (
	"errors"
	"sync"

	"nuha.dev/hiketracker/internal/store"
	"nuha.dev/hiketracker/internal/store/impl/logstore"
)

var ErrInjected = errors.New("injected failure")

// Faulty wraps an in-memory store and fails reads or writes on demand.
type Faulty struct {
	*logstore.LogStore

	mu         sync.Mutex
	failWrites bool
	failReads  bool
	failKeys   bool
	writes     int
}

func NewFaulty() *Faulty {
	return &Faulty{LogStore: logstore.NewStore()}
}

func (f *Faulty) FailWrites(v bool) {
	f.mu.Lock()
	f.failWrites = v
	f.mu.Unlock()
}

func (f *Faulty) FailReads(v bool) {
	f.mu.Lock()
	f.failReads = v
	f.mu.Unlock()
}

func (f *Faulty) FailKeys(v bool) {
	f.mu.Lock()
	f.failKeys = v
	f.mu.Unlock()
}

// Writes is the number of successful writes so far.
func (f *Faulty) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *Faulty) Read(key string) ([]byte, error) {
	f.mu.Lock()
	fail := f.failReads
	f.mu.Unlock()
	if fail {
		return nil, ErrInjected
	}
	return f.LogStore.Read(key)
}

func (f *Faulty) Write(key string, data []byte) error {
	f.mu.Lock()
	fail := f.failWrites
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	if err := f.LogStore.Write(key, data); err != nil {
		return err
	}
	f.mu.Lock()
	f.writes++
	f.mu.Unlock()
	return nil
}

func (f *Faulty) Keys() ([]string, error) {
	f.mu.Lock()
	fail := f.failKeys
	f.mu.Unlock()
	if fail {
		return nil, ErrInjected
	}
	return f.LogStore.Keys()
}

var _ store.RecordStore = (*Faulty)(nil)
