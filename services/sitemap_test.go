package services

import (
	"strings"
	"testing"
	"time"

	"github.com/TokDenis/awblog/types"
)

func TestSitemap(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	posts := []*types.Post{
		{
			Id:       "002-tips",
			Title:    "Tips & <tricks>",
			ImageUrl: "https://img.test/tips.png",
			Tags:     []string{"go", "C++"},
			Metadata: types.Metadata{CreatedTime: created, ModificationTime: created.AddDate(0, 1, 0)},
		},
		{
			Id:       "001-intro",
			Title:    "Intro",
			Tags:     []string{"go"},
			Metadata: types.Metadata{CreatedTime: created},
		},
	}

	b, err := Sitemap("https://blog.test/", posts)
	if err != nil {
		t.Fatal(err)
	}
	out := string(b)

	if !strings.HasPrefix(out, "<?xml") {
		t.Error("missing xml header")
	}
	// 3 static pages, 2 posts, 2 tags
	if n := strings.Count(out, "<url>"); n != 7 {
		t.Errorf("%d urls", n)
	}

	for _, want := range []string{
		"<loc>https://blog.test/</loc>",
		"<loc>https://blog.test/posts/002-tips</loc>",
		"<lastmod>2024-04-01</lastmod>",
		"<lastmod>2024-03-01</lastmod>",
		"<loc>https://blog.test/posts/tag/C++</loc>",
		"<image:title>Tips &amp; &lt;tricks&gt;</image:title>",
		`xmlns:image="http://www.google.com/schemas/sitemap-image/1.1"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("sitemap lacks %s", want)
		}
	}
	if strings.Count(out, "<image:image>") != 1 {
		t.Error("only posts with an image carry image:image")
	}
}
