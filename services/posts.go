package services

import (
	"context"
	"sort"
	"strings"

	"github.com/TokDenis/awblog/storage"
	"github.com/TokDenis/awblog/types"
)

const (
	FeaturedCount = 3
	RelatedCount  = 3
)

// Posts answers read queries by scanning the whole store. It is meant for a
// few hundred posts at most.
type Posts struct {
	store storage.Store
}

func NewPosts(store storage.Store) *Posts {
	return &Posts{store: store}
}

func (p *Posts) All(ctx context.Context) ([]*types.Post, error) {
	return p.store.ListAll(ctx)
}

func (p *Posts) Get(ctx context.Context, id string) (*types.Post, error) {
	return p.store.GetById(ctx, id)
}

func (p *Posts) View(ctx context.Context, id string) error {
	return p.store.IncrementViews(ctx, id)
}

func (p *Posts) ByTag(ctx context.Context, tag string) ([]*types.Post, error) {
	all, err := p.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var posts []*types.Post
	for _, post := range all {
		if post.HasTag(tag) {
			posts = append(posts, post)
		}
	}
	return posts, nil
}

// Search matches query against title, description and tags, ignoring case.
// An empty query matches nothing.
func (p *Posts) Search(ctx context.Context, query string) ([]*types.Post, error) {
	all, err := p.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}

	var posts []*types.Post
	for _, post := range all {
		if matches(post, q) {
			posts = append(posts, post)
		}
	}
	return posts, nil
}

func matches(post *types.Post, q string) bool {
	if strings.Contains(strings.ToLower(post.Title), q) ||
		strings.Contains(strings.ToLower(post.Description), q) {
		return true
	}
	for _, tag := range post.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// Tags returns every tag in use, deduplicated and sorted.
func (p *Posts) Tags(ctx context.Context) ([]string, error) {
	all, err := p.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return uniqueTags(all), nil
}

func uniqueTags(posts []*types.Post) []string {
	seen := make(map[string]struct{})
	tags := []string{}
	for _, post := range posts {
		for _, tag := range post.Tags {
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags
}

func (p *Posts) Featured(ctx context.Context) ([]*types.Post, error) {
	all, err := p.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var posts []*types.Post
	for _, post := range all {
		if post.Featured {
			posts = append(posts, post)
			if len(posts) == FeaturedCount {
				break
			}
		}
	}
	return posts, nil
}

// Recent returns up to n newest posts, skipping excludeId.
func (p *Posts) Recent(ctx context.Context, excludeId string, n int) ([]*types.Post, error) {
	all, err := p.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	posts := make([]*types.Post, 0, n)
	for _, post := range all {
		if len(posts) == n {
			break
		}
		if post.Id != excludeId {
			posts = append(posts, post)
		}
	}
	return posts, nil
}

// Related returns up to three other posts sharing one of the first two tags
// of post.
func (p *Posts) Related(ctx context.Context, post *types.Post) ([]*types.Post, error) {
	all, err := p.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	tags := post.Tags
	if len(tags) > 2 {
		tags = tags[:2]
	}

	seen := map[string]bool{post.Id: true}
	var related []*types.Post
	for _, tag := range tags {
		for _, other := range all {
			if len(related) == RelatedCount {
				return related, nil
			}
			if seen[other.Id] || !other.HasTag(tag) {
				continue
			}
			seen[other.Id] = true
			related = append(related, other)
		}
	}
	return related, nil
}

// Page is one slice of the newest-first listing.
type Page struct {
	Posts   []*types.Post
	Current int
	Total   int
}

func (pg Page) HasPrev() bool { return pg.Current > 1 }
func (pg Page) HasNext() bool { return pg.Current < pg.Total }
func (pg Page) Prev() int     { return pg.Current - 1 }
func (pg Page) Next() int     { return pg.Current + 1 }

// Page cuts all posts into pages of perPage. Pages are numbered from 1; a page
// past the end holds no posts.
func (p *Posts) Page(ctx context.Context, page, perPage int) (Page, error) {
	all, err := p.store.ListAll(ctx)
	if err != nil {
		return Page{}, err
	}
	return paginate(all, page, perPage), nil
}

func paginate(all []*types.Post, page, perPage int) Page {
	if perPage <= 0 {
		perPage = 10
	}

	total := (len(all) + perPage - 1) / perPage
	if total == 0 {
		total = 1
	}
	if page < 1 {
		page = 1
	}

	from := (page - 1) * perPage
	if from > len(all) {
		from = len(all)
	}
	to := from + perPage
	if to > len(all) {
		to = len(all)
	}

	return Page{Posts: all[from:to], Current: page, Total: total}
}
