package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/TokDenis/awblog/storage"
	"github.com/TokDenis/awblog/types"
)

func newStore(t *testing.T) *storage.FileStore {
	t.Helper()

	s, err := storage.NewFileStore(t.TempDir(), storage.Defaults{Author: "admin"})
	if err != nil {
		t.Fatal(err)
	}

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time {
		now = now.Add(time.Minute)
		return now
	})
	return s
}

func addPost(t *testing.T, s storage.Store, id string, featured bool, tags ...string) *types.Post {
	t.Helper()

	p, err := s.Create(context.Background(), types.PostInput{
		Id:          id,
		Title:       "Title " + id,
		Slug:        id,
		Description: "About " + id,
		Tags:        tags,
		Content:     "body",
		Featured:    featured,
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func ids(posts []*types.Post) string {
	var out []string
	for _, p := range posts {
		out = append(out, p.Id)
	}
	return fmt.Sprint(out)
}

func TestByTagIgnoresCase(t *testing.T) {
	s := newStore(t)
	addPost(t, s, "001-a", false, "Go", "web")
	addPost(t, s, "002-b", false, "rust")
	addPost(t, s, "003-c", false, "GO")

	posts, err := NewPosts(s).ByTag(context.Background(), "go")
	if err != nil {
		t.Fatal(err)
	}
	if ids(posts) != "[003-c 001-a]" {
		t.Errorf("ByTag = %s", ids(posts))
	}
}

func TestSearch(t *testing.T) {
	s := newStore(t)
	addPost(t, s, "001-intro", false, "Go")
	addPost(t, s, "002-other", false, "Databases")

	p := NewPosts(s)
	ctx := context.Background()

	cases := map[string]string{
		"INTRO":    "[001-intro]",
		"about 00": "[002-other 001-intro]",
		"databa":   "[002-other]",
		"nothing":  "[]",
		"   ":      "[]",
	}
	for q, want := range cases {
		posts, err := p.Search(ctx, q)
		if err != nil {
			t.Fatal(err)
		}
		if ids(posts) != want {
			t.Errorf("Search(%q) = %s, want %s", q, ids(posts), want)
		}
	}
}

func TestTagsAndFeatured(t *testing.T) {
	s := newStore(t)
	for i := 1; i <= 5; i++ {
		addPost(t, s, fmt.Sprintf("%03d-p", i), true, "b", "a")
	}
	addPost(t, s, "006-p", false, "c")

	p := NewPosts(s)
	ctx := context.Background()

	tags, err := p.Tags(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(tags) != "[a b c]" {
		t.Errorf("Tags = %v", tags)
	}

	featured, err := p.Featured(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ids(featured) != "[005-p 004-p 003-p]" {
		t.Errorf("Featured = %s", ids(featured))
	}
}

func TestRelatedAndRecent(t *testing.T) {
	s := newStore(t)
	addPost(t, s, "001-a", false, "go")
	addPost(t, s, "002-b", false, "web")
	addPost(t, s, "003-c", false, "go", "web")
	addPost(t, s, "004-d", false, "db")
	addPost(t, s, "005-e", false, "db")
	target := addPost(t, s, "006-f", false, "go", "web", "db")

	p := NewPosts(s)
	ctx := context.Background()

	related, err := p.Related(ctx, target)
	if err != nil {
		t.Fatal(err)
	}
	// only the first two tags count, and 003-c is listed once
	if ids(related) != "[003-c 001-a 002-b]" {
		t.Errorf("Related = %s", ids(related))
	}

	recent, err := p.Recent(ctx, target.Id, 2)
	if err != nil {
		t.Fatal(err)
	}
	if ids(recent) != "[005-e 004-d]" {
		t.Errorf("Recent = %s", ids(recent))
	}
}

func TestStatsMostViewedTie(t *testing.T) {
	posts := []*types.Post{
		{Id: "004", Views: 5, Tags: []string{"go"}},
		{Id: "003", Views: 9, Tags: []string{"go", "web"}},
		{Id: "002", Views: 9},
		{Id: "001", Views: 1, Tags: []string{"db"}},
	}

	stats := computeStats(posts)

	if stats.Total != 4 || stats.TotalViews != 24 || stats.AverageViews != 6 || stats.TotalTags != 3 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.NewestPost.Id != "004" {
		t.Errorf("newest = %s", stats.NewestPost.Id)
	}
	if stats.MostViewedPost.Id != "003" {
		t.Errorf("most viewed = %s, want the earlier of the tie", stats.MostViewedPost.Id)
	}

	empty := computeStats(nil)
	if empty.Total != 0 || empty.NewestPost != nil || empty.MostViewedPost != nil {
		t.Errorf("empty stats = %+v", empty)
	}
}

func TestPaginate(t *testing.T) {
	var all []*types.Post
	for i := 0; i < 23; i++ {
		all = append(all, &types.Post{Id: fmt.Sprint(i)})
	}

	cases := []struct {
		page, wantCurrent, wantLen int
	}{
		{1, 1, 10},
		{3, 3, 3},
		{0, 1, 10},
		{9, 9, 0},
	}
	for _, c := range cases {
		pg := paginate(all, c.page, 10)
		if pg.Current != c.wantCurrent || len(pg.Posts) != c.wantLen || pg.Total != 3 {
			t.Errorf("page %d: current %d len %d total %d", c.page, pg.Current, len(pg.Posts), pg.Total)
		}
	}

	if pg := paginate(nil, 1, 10); pg.Total != 1 || len(pg.Posts) != 0 {
		t.Errorf("empty = %+v", pg)
	}
}
