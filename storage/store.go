package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/TokDenis/awblog/types"
)

// Store is the contract every post backend honors. ListAll is always ordered
// by metadata.created_time, newest first.
type Store interface {
	ListAll(ctx context.Context) ([]*types.Post, error)
	GetById(ctx context.Context, id string) (*types.Post, error)
	Create(ctx context.Context, in types.PostInput) (*types.Post, error)
	Update(ctx context.Context, id string, patch types.PostPatch) (*types.Post, error)
	Delete(ctx context.Context, id string) error
	IncrementViews(ctx context.Context, id string) error
	Close() error
}

var ErrNotFound = errors.New("post not found")
var ErrConflict = errors.New("post id already exists")
var ErrValidation = errors.New("invalid post")

const (
	DefaultReadingTime = 5
	DefaultStatus      = "published"
	InitialVersion     = "1.0"
)

var validId = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Defaults carries the values applied to fields a new post leaves empty.
type Defaults struct {
	Author string
}

func validateInput(in types.PostInput) error {
	var missing []string
	if in.Id == "" {
		missing = append(missing, "id")
	}
	if in.Title == "" {
		missing = append(missing, "title")
	}
	if in.Slug == "" {
		missing = append(missing, "slug")
	}
	if in.Description == "" {
		missing = append(missing, "description")
	}
	if len(in.Tags) == 0 {
		missing = append(missing, "tags")
	}
	if in.Content == "" {
		missing = append(missing, "content")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrValidation, strings.Join(missing, ", "))
	}
	if !validId.MatchString(in.Id) {
		return fmt.Errorf("%w: id %q is not a valid file name", ErrValidation, in.Id)
	}
	return nil
}

func newPost(in types.PostInput, d Defaults, now time.Time) *types.Post {
	p := &types.Post{
		Id:          in.Id,
		Title:       in.Title,
		Slug:        in.Slug,
		Description: in.Description,
		ImageUrl:    in.ImageUrl,
		Tags:        append([]string(nil), in.Tags...),
		Author:      in.Author,
		ReadingTime: in.ReadingTime,
		Content:     in.Content,
		Featured:    in.Featured,
		Metadata: types.Metadata{
			CreatedTime:      now,
			ModificationTime: now,
			Version:          InitialVersion,
			Status:           in.Status,
			SeoKeywords:      in.SeoKeywords,
		},
	}
	if p.Author == "" {
		p.Author = d.Author
	}
	if p.ReadingTime <= 0 {
		p.ReadingTime = DefaultReadingTime
	}
	if p.Metadata.Status == "" {
		p.Metadata.Status = DefaultStatus
	}
	return p
}

// applyPatch merges patch into p and recomputes modification time and version.
// Blank required fields, author and status keep their stored value.
func applyPatch(p *types.Post, patch types.PostPatch, now time.Time) {
	keep := func(dst *string, v *string) {
		if v != nil && strings.TrimSpace(*v) != "" {
			*dst = *v
		}
	}

	keep(&p.Title, patch.Title)
	keep(&p.Slug, patch.Slug)
	keep(&p.Description, patch.Description)
	if patch.ImageUrl != nil {
		p.ImageUrl = *patch.ImageUrl
	}
	if len(patch.Tags) > 0 {
		p.Tags = append([]string(nil), patch.Tags...)
	}
	keep(&p.Author, patch.Author)
	if patch.ReadingTime != nil && *patch.ReadingTime > 0 {
		p.ReadingTime = *patch.ReadingTime
	}
	keep(&p.Content, patch.Content)
	if patch.Featured != nil {
		p.Featured = *patch.Featured
	}
	keep(&p.Metadata.Status, patch.Status)
	if patch.SeoKeywords != nil {
		p.Metadata.SeoKeywords = *patch.SeoKeywords
	}

	p.Metadata.ModificationTime = touch(p.Metadata.ModificationTime, now)
	p.Metadata.Version = NextVersion(p.Metadata.Version)
}

// touch returns now, or the instant just after prev when the clock has not
// moved past it, so modification times strictly increase.
func touch(prev, now time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Microsecond)
}

// NextVersion bumps the minor component of a MAJOR.MINOR version.
// Missing or unparsable parts count as 0.
func NextVersion(v string) string {
	parts := strings.SplitN(v, ".", 3)
	major, _ := strconv.Atoi(strings.TrimSpace(parts[0]))
	minor := 0
	if len(parts) > 1 {
		minor, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
	}
	return strconv.Itoa(major) + "." + strconv.Itoa(minor+1)
}

// Open returns the backend named by backend: "file" keeps posts under
// postsDir, "table" connects to dsn with driver.
func Open(backend, postsDir, driver, dsn string, d Defaults) (Store, error) {
	switch backend {
	case "", "file":
		return NewFileStore(postsDir, d)
	case "table":
		return OpenTableStore(driver, dsn, d)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
