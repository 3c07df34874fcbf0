package gitsync

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// StampStore keeps the time of the last successful sync.
type StampStore interface {
	// Last returns the stored time; ok is false when no sync happened yet.
	Last() (t time.Time, ok bool, err error)
	Set(t time.Time) error
}

// FileStamp stores the timestamp as one RFC 3339 line in a sidecar file.
type FileStamp struct {
	path string
}

func NewFileStamp(path string) *FileStamp {
	return &FileStamp{path: path}
}

func (s *FileStamp) Last() (time.Time, bool, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}

	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(b)))
	if err != nil {
		log.Warn().Err(err).Str("file", s.path).Msg("corrupt sync stamp, treating as never synced")
		return time.Time{}, false, nil
	}
	return t, true, nil
}

func (s *FileStamp) Set(t time.Time) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return err
		}
	}
	return os.WriteFile(s.path, []byte(t.UTC().Format(time.RFC3339Nano)+"\n"), 0644)
}
