package filestore

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/phuslu/log"
	"github.com/spf13/afero"
	"nuha.dev/hiketracker/internal/store"
)

const (
	ext    = ".json"
	tmpExt = ".tmp"
)

// FileStore keeps one JSON file per record under root. All file access goes
// through a BasePathFs so nothing outside root can be touched.
type FileStore struct {
	fs  afero.Fs
	log log.Logger
}

func New(base afero.Fs, root string) (*FileStore, error) {
	if err := base.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", root, err)
	}
	s := &FileStore{fs: afero.NewBasePathFs(base, root)}
	s.log = log.DefaultLogger
	s.log.Context = log.NewContext(nil).Str("module", "filestore").Str("root", root).Value()
	s.cleanup()
	return s, nil
}

func NewOs(root string) (*FileStore, error) {
	return New(afero.NewOsFs(), root)
}

func fileName(key string) string {
	return "/" + key + ext
}

func (s *FileStore) Read(key string) ([]byte, error) {
	if !store.ValidKey(key) {
		return nil, store.ErrInvalidKey
	}
	d, err := afero.ReadFile(s.fs, fileName(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// Write replaces the record by writing a sibling temp file and renaming it over
// the target, so readers never observe a half written file.
func (s *FileStore) Write(key string, data []byte) error {
	if !store.ValidKey(key) {
		return store.ErrInvalidKey
	}
	target := fileName(key)
	tmp := target + "." + uuid.NewString() + tmpExt
	f, err := s.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	if err = s.fs.Rename(tmp, target); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	return nil
}

func (s *FileStore) Keys() ([]string, error) {
	infos, err := afero.ReadDir(s.fs, "/")
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(infos))
	for _, fi := range infos {
		if fi.IsDir() {
			continue
		}
		name := fi.Name()
		if path.Ext(name) != ext {
			continue
		}
		key := strings.TrimSuffix(name, ext)
		if store.ValidKey(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FileStore) Close() error {
	return nil
}

// cleanup removes temp files left behind by a write interrupted by a crash.
func (s *FileStore) cleanup() {
	infos, err := afero.ReadDir(s.fs, "/")
	if err != nil {
		return
	}
	for _, fi := range infos {
		if fi.IsDir() || !strings.HasSuffix(fi.Name(), tmpExt) {
			continue
		}
		if err := s.fs.Remove("/" + fi.Name()); err != nil {
			s.log.Warn().Err(err).Str("file", fi.Name()).Msg("unable to remove stale temp file")
		} else {
			s.log.Info().Str("file", fi.Name()).Msg("removed stale temp file")
		}
	}
}
