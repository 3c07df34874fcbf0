package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/TokDenis/awblog/storage"
	"github.com/TokDenis/awblog/types"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"
)

var ErrBadDraft = errors.New("invalid post document")

var idPrefix = regexp.MustCompile(`^(\d+)-`)

// Admin holds the write side used by the admin pages.
type Admin struct {
	store storage.Store
}

func NewAdmin(store storage.Store) *Admin {
	return &Admin{store: store}
}

// NextId numbers a new post one past the highest numeric id prefix in the
// store, e.g. "006-my-post". Ids without a prefix count as 0.
func (a *Admin) NextId(ctx context.Context, slug string) (string, error) {
	all, err := a.store.ListAll(ctx)
	if err != nil {
		return "", err
	}

	max := 0
	for _, post := range all {
		m := idPrefix.FindStringSubmatch(post.Id)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}

	return fmt.Sprintf("%03d-%s", max+1, slug), nil
}

func (a *Admin) Create(ctx context.Context, in types.PostInput) (*types.Post, error) {
	post, err := a.store.Create(ctx, in)
	if err != nil {
		return nil, err
	}

	log.Info().Str("id", post.Id).Msg("post created")
	return post, nil
}

func (a *Admin) Update(ctx context.Context, id string, patch types.PostPatch) (*types.Post, error) {
	post, err := a.store.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	log.Info().Str("id", id).Str("version", post.Metadata.Version).Msg("post updated")
	return post, nil
}

func (a *Admin) Delete(ctx context.Context, id string) error {
	if err := a.store.Delete(ctx, id); err != nil {
		return err
	}

	log.Info().Str("id", id).Msg("post deleted")
	return nil
}

// Slugify turns a title into a lowercase, dash separated ascii slug.
// Accents are stripped: "Qué es Go?" becomes "que-es-go".
func Slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range norm.NFD.String(strings.ToLower(title)) {
		switch {
		case unicode.Is(unicode.Mn, r):
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		default:
			dash = true
		}
	}
	return b.String()
}

// ParseDraft reads an uploaded post document. Title and content are required.
func ParseDraft(b []byte) (*types.Draft, error) {
	var d types.Draft

	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDraft, err)
	}
	if strings.TrimSpace(d.Title) == "" || strings.TrimSpace(d.Content) == "" {
		return nil, fmt.Errorf("%w: title and content are required", ErrBadDraft)
	}
	if d.Slug == "" {
		d.Slug = Slugify(d.Title)
	}
	return &d, nil
}
