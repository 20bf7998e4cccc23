package store

import (
	"errors"
	"regexp"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrInvalidKey = errors.New("invalid record key")
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// RecordStore persists whole documents by key. Write must be atomic from the
// point of view of Read: a reader sees either the old or the new document.
type RecordStore interface {
	Read(key string) ([]byte, error)
	Write(key string, data []byte) error
	Keys() ([]string, error)
	Close() error
}

// ValidKey reports whether key is a single flat identifier that cannot escape
// the storage root.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

// PersistenceError is returned when a record could not be written.
type PersistenceError struct {
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return "persist " + e.Key + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistence reports whether err is, or wraps, a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
