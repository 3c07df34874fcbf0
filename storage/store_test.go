package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TokDenis/awblog/types"
)

type testStore interface {
	Store
	SetClock(func() time.Time)
}

type tickClock struct {
	t time.Time
}

func (c *tickClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func backends(t *testing.T) map[string]testStore {
	t.Helper()

	d := Defaults{Author: "admin"}

	fileStore, err := NewFileStore(t.TempDir(), d)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	tableStore, err := OpenTableStore("sqlite", dsn, d)
	if err != nil {
		t.Fatalf("table store: %v", err)
	}
	t.Cleanup(func() { tableStore.Close() })

	stores := map[string]testStore{"file": fileStore, "table": tableStore}
	for _, s := range stores {
		c := &tickClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
		s.SetClock(c.now)
	}
	return stores
}

func input(id string) types.PostInput {
	return types.PostInput{
		Id:          id,
		Title:       "Title " + id,
		Slug:        id,
		Description: "About " + id,
		Tags:        []string{"Go", "Web"},
		Content:     "<p>body</p>",
	}
}

func TestCreateThenGet(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Create(ctx, input("001-first")); err != nil {
				t.Fatalf("create: %v", err)
			}

			p, err := s.GetById(ctx, "001-first")
			if err != nil {
				t.Fatalf("get: %v", err)
			}

			if !p.Metadata.CreatedTime.Equal(p.Metadata.ModificationTime) {
				t.Error("created_time and modification_time differ on a new post")
			}
			if p.Metadata.Version != "1.0" {
				t.Errorf("version = %q", p.Metadata.Version)
			}
			if p.Views != 0 {
				t.Errorf("views = %d", p.Views)
			}
			if p.Author != "admin" || p.ReadingTime != 5 || p.Metadata.Status != "published" {
				t.Errorf("defaults not applied: %q %d %q", p.Author, p.ReadingTime, p.Metadata.Status)
			}
			if len(p.Tags) != 2 || p.Tags[0] != "Go" {
				t.Errorf("tags = %v", p.Tags)
			}
		})
	}
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			in := input("002-bad")
			in.Title = ""
			in.Tags = nil

			_, err := s.Create(ctx, in)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
			if !strings.Contains(err.Error(), "title") || !strings.Contains(err.Error(), "tags") {
				t.Errorf("error does not name the missing fields: %v", err)
			}

			in = input("../escape")
			if _, err = s.Create(ctx, in); !errors.Is(err, ErrValidation) {
				t.Errorf("unsafe id accepted: %v", err)
			}

			posts, err := s.ListAll(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(posts) != 0 {
				t.Errorf("store changed after failed creates: %d posts", len(posts))
			}
		})
	}
}

func TestCreateConflict(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Create(ctx, input("003-dup")); err != nil {
				t.Fatal(err)
			}

			again := input("003-dup")
			again.Title = "Replaced"
			if _, err := s.Create(ctx, again); !errors.Is(err, ErrConflict) {
				t.Fatalf("err = %v, want ErrConflict", err)
			}

			p, err := s.GetById(ctx, "003-dup")
			if err != nil {
				t.Fatal(err)
			}
			if p.Title != "Title 003-dup" {
				t.Errorf("existing post was altered: %q", p.Title)
			}
		})
	}
}

func TestUpdateBumpsVersionAndTime(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			created, err := s.Create(ctx, input("004-upd"))
			if err != nil {
				t.Fatal(err)
			}

			title := "New title"
			first, err := s.Update(ctx, "004-upd", types.PostPatch{Title: &title})
			if err != nil {
				t.Fatal(err)
			}
			if first.Metadata.Version != "1.1" {
				t.Errorf("version = %q, want 1.1", first.Metadata.Version)
			}
			if !first.Metadata.ModificationTime.After(created.Metadata.ModificationTime) {
				t.Error("modification_time did not increase")
			}
			if first.Description != created.Description || first.Content != created.Content {
				t.Error("omitted fields were not retained")
			}

			second, err := s.Update(ctx, "004-upd", types.PostPatch{Tags: []string{"db"}})
			if err != nil {
				t.Fatal(err)
			}
			if second.Metadata.Version != "1.2" {
				t.Errorf("version = %q, want 1.2", second.Metadata.Version)
			}
			if !second.Metadata.ModificationTime.After(first.Metadata.ModificationTime) {
				t.Error("modification_time did not increase on second update")
			}

			stored, err := s.GetById(ctx, "004-upd")
			if err != nil {
				t.Fatal(err)
			}
			if stored.Title != title || len(stored.Tags) != 1 || stored.Tags[0] != "db" {
				t.Errorf("stored post = %q %v", stored.Title, stored.Tags)
			}
			if !stored.Metadata.CreatedTime.Equal(created.Metadata.CreatedTime) {
				t.Error("created_time changed")
			}

			if _, err = s.Update(ctx, "999-none", types.PostPatch{Title: &title}); !errors.Is(err, ErrNotFound) {
				t.Errorf("update of missing post: %v", err)
			}
		})
	}
}

func TestUpdateKeepsBlankRequiredFields(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			created, err := s.Create(ctx, input("006-blank"))
			if err != nil {
				t.Fatal(err)
			}

			blank, spaces, image := "", "  ", ""
			updated, err := s.Update(ctx, "006-blank", types.PostPatch{
				Title:       &blank,
				Slug:        &blank,
				Description: &spaces,
				Content:     &blank,
				Tags:        []string{},
				Author:      &blank,
				Status:      &blank,
				ImageUrl:    &image,
			})
			if err != nil {
				t.Fatal(err)
			}

			stored, err := s.GetById(ctx, "006-blank")
			if err != nil {
				t.Fatal(err)
			}
			for _, p := range []*types.Post{updated, stored} {
				if p.Title != created.Title || p.Slug != created.Slug || p.Description != created.Description ||
					p.Content != created.Content || len(p.Tags) != len(created.Tags) {
					t.Errorf("required fields blanked: %+v", p)
				}
				if p.Author != created.Author || p.Metadata.Status != created.Metadata.Status {
					t.Errorf("author %q status %q", p.Author, p.Metadata.Status)
				}
			}
		})
	}
}

func TestIncrementViews(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			before, err := s.Create(ctx, input("005-views"))
			if err != nil {
				t.Fatal(err)
			}

			if err = s.IncrementViews(ctx, "005-views"); err != nil {
				t.Fatal(err)
			}

			after, err := s.GetById(ctx, "005-views")
			if err != nil {
				t.Fatal(err)
			}
			if after.Views != before.Views+1 {
				t.Errorf("views = %d, want %d", after.Views, before.Views+1)
			}
			if after.Title != before.Title || after.Metadata.Version != before.Metadata.Version ||
				!after.Metadata.CreatedTime.Equal(before.Metadata.CreatedTime) {
				t.Error("fields other than views and modification_time changed")
			}

			if err = s.IncrementViews(ctx, "404-missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("increment of missing post: %v", err)
			}
		})
	}
}

func TestListAllNewestFirst(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"001-a", "002-b", "003-c"} {
				if _, err := s.Create(ctx, input(id)); err != nil {
					t.Fatal(err)
				}
			}

			posts, err := s.ListAll(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(posts) != 3 {
				t.Fatalf("got %d posts", len(posts))
			}
			for i := 1; i < len(posts); i++ {
				if posts[i-1].Metadata.CreatedTime.Before(posts[i].Metadata.CreatedTime) {
					t.Errorf("posts %d and %d out of order", i-1, i)
				}
			}
			if posts[0].Id != "003-c" {
				t.Errorf("newest = %s", posts[0].Id)
			}
		})
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Create(ctx, input("006-del")); err != nil {
				t.Fatal(err)
			}

			if err := s.Delete(ctx, "006-del"); err != nil {
				t.Fatal(err)
			}
			if _, err := s.GetById(ctx, "006-del"); !errors.Is(err, ErrNotFound) {
				t.Errorf("get after delete: %v", err)
			}
			if err := s.Delete(ctx, "006-del"); err != nil {
				t.Errorf("second delete: %v", err)
			}
		})
	}
}

func TestFileStoreSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, Defaults{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err = s.Create(context.Background(), input("001-ok")); err != nil {
		t.Fatal(err)
	}
	if err = os.WriteFile(filepath.Join(dir, "002-broken.json"), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if err = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	posts, err := s.ListAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 1 || posts[0].Id != "001-ok" {
		t.Errorf("ListAll = %v", posts)
	}
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, Defaults{})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err = s.Create(ctx, input("001-ok")); err != nil {
		t.Fatal(err)
	}
	if _, err = s.Create(ctx, input("001-ok")); !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	// a directory squatting on the document name makes the create fail
	if err = os.Mkdir(filepath.Join(dir, "002-taken.json"), 0755); err != nil {
		t.Fatal(err)
	}
	if _, err = s.Create(ctx, input("002-taken")); err == nil {
		t.Fatal("create over a directory succeeded")
	}
	if err = s.IncrementViews(ctx, "001-ok"); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if strings.Join(names, " ") != "001-ok.json 002-taken.json" {
		t.Errorf("dir holds %v", names)
	}

	info, err := os.Stat(filepath.Join(dir, "001-ok.json"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Error("empty post document")
	}
}

func TestFileStoreReadsExistingDocuments(t *testing.T) {
	dir := t.TempDir()
	doc := `{
  "id": "007-legacy",
  "title": "Legacy",
  "slug": "legacy",
  "description": "old post",
  "image_url": "",
  "tags": ["Go"],
  "author": "someone",
  "reading_time": 7,
  "content": "hello",
  "metadata": {
    "created_time": "2023-05-01T10:00:00.000Z",
    "modification_time": "2023-05-02T10:00:00.000Z",
    "version": "2.9",
    "status": "published",
    "seo_keywords": ""
  },
  "featured": true,
  "views": 12
}`
	if err := os.WriteFile(filepath.Join(dir, "007-legacy.json"), []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := NewFileStore(dir, Defaults{})
	if err != nil {
		t.Fatal(err)
	}

	title := "Legacy v2"
	p, err := s.Update(context.Background(), "007-legacy", types.PostPatch{Title: &title})
	if err != nil {
		t.Fatal(err)
	}
	if p.Metadata.Version != "2.10" {
		t.Errorf("version = %q, want 2.10", p.Metadata.Version)
	}
	if p.Views != 12 || !p.Featured || p.ReadingTime != 7 {
		t.Errorf("fields lost: %+v", p)
	}
}

func TestNextVersion(t *testing.T) {
	cases := map[string]string{
		"1.0":   "1.1",
		"1.1":   "1.2",
		"2.9":   "2.10",
		"3":     "3.1",
		"":      "0.1",
		"x.y":   "0.1",
		"4.2.7": "4.3",
	}
	for in, want := range cases {
		if got := NextVersion(in); got != want {
			t.Errorf("NextVersion(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCarryViewsPrefersHigherCount(t *testing.T) {
	local := []byte(`{"id":"001-a","title":"old","views":7}`)
	upstream := []byte(`{"id":"001-a","title":"new","views":3}`)

	b, err := CarryViews(local, upstream)
	if err != nil {
		t.Fatal(err)
	}

	var p types.Post
	if err = json.Unmarshal(b, &p); err != nil {
		t.Fatal(err)
	}
	if p.Title != "new" || p.Views != 7 {
		t.Errorf("merged = %q with %d views", p.Title, p.Views)
	}

	if _, err = CarryViews([]byte("{"), upstream); err == nil {
		t.Error("corrupt local document accepted")
	}
}
