package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/TokDenis/awblog/types"
	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"
)

// FileStore keeps one <id>.json document per post inside dir.
type FileStore struct {
	dir      string
	defaults Defaults
	now      func() time.Time
}

func NewFileStore(dir string, d Defaults) (*FileStore, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create posts dir: %w", err)
	}

	return &FileStore{
		dir:      dir,
		defaults: d,
		now:      time.Now,
	}, nil
}

// SetClock replaces the time source, mostly for tests.
func (s *FileStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) ListAll(_ context.Context) ([]*types.Post, error) {
	if _, err := os.Stat(s.dir); errors.Is(err, fs.ErrNotExist) {
		return []*types.Post{}, nil
	}

	dirents, err := godirwalk.ReadDirents(s.dir, nil)
	if err != nil {
		return nil, fmt.Errorf("read posts dir: %w", err)
	}

	posts := make([]*types.Post, 0, len(dirents))
	for _, de := range dirents {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}

		post, err := s.read(filepath.Join(s.dir, de.Name()))
		if err != nil {
			log.Warn().Err(err).Str("file", de.Name()).Msg("skip unreadable post")
			continue
		}
		posts = append(posts, post)
	}

	sortNewestFirst(posts)

	return posts, nil
}

func (s *FileStore) GetById(_ context.Context, id string) (*types.Post, error) {
	if !validId.MatchString(id) {
		return nil, ErrNotFound
	}

	post, err := s.read(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return post, nil
}

func (s *FileStore) Create(_ context.Context, in types.PostInput) (*types.Post, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	post := newPost(in, s.defaults, s.now())

	tmp, err := s.writeTemp(post)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp)

	// the link fails when <id>.json exists, and the document is complete before
	// it becomes visible
	if err = os.Link(tmp, s.path(post.Id)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, ErrConflict
		}
		return nil, err
	}

	return post, nil
}

func (s *FileStore) Update(ctx context.Context, id string, patch types.PostPatch) (*types.Post, error) {
	post, err := s.GetById(ctx, id)
	if err != nil {
		return nil, err
	}

	applyPatch(post, patch, s.now())

	if err = s.write(post); err != nil {
		return nil, err
	}
	return post, nil
}

// Delete removes the post file. A missing file is not an error.
func (s *FileStore) Delete(_ context.Context, id string) error {
	if !validId.MatchString(id) {
		return nil
	}

	err := os.Remove(s.path(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// IncrementViews is a plain read-modify-write; concurrent calls may lose an update.
func (s *FileStore) IncrementViews(ctx context.Context, id string) error {
	post, err := s.GetById(ctx, id)
	if err != nil {
		return err
	}

	post.Views++
	post.Metadata.ModificationTime = touch(post.Metadata.ModificationTime, s.now())

	return s.write(post)
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) read(path string) (*types.Post, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var post types.Post

	err = json.Unmarshal(b, &post)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	return &post, nil
}

// write replaces the post document through a temp file so readers never see
// a half-written file.
func (s *FileStore) write(post *types.Post) error {
	tmp, err := s.writeTemp(post)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	return os.Rename(tmp, s.path(post.Id))
}

// writeTemp stores the encoded post in a hidden temp file next to the posts
// and returns its name. Nothing is left behind on failure.
func (s *FileStore) writeTemp(post *types.Post) (string, error) {
	b, err := json.MarshalIndent(post, "", "  ")
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, "."+post.Id+".*.tmp")
	if err != nil {
		return "", err
	}

	if _, err = tmp.Write(b); err == nil {
		err = tmp.Chmod(0644)
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func sortNewestFirst(posts []*types.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].Metadata.CreatedTime.After(posts[j].Metadata.CreatedTime)
	})
}

// CarryViews lays the view count of a locally modified post document over
// the incoming version of the same document. The higher count wins.
func CarryViews(local, upstream []byte) ([]byte, error) {
	var mine, theirs types.Post

	if err := json.Unmarshal(local, &mine); err != nil {
		return nil, fmt.Errorf("decode local post: %w", err)
	}
	if err := json.Unmarshal(upstream, &theirs); err != nil {
		return nil, fmt.Errorf("decode incoming post: %w", err)
	}

	if mine.Views > theirs.Views {
		theirs.Views = mine.Views
	}

	return json.MarshalIndent(&theirs, "", "  ")
}
