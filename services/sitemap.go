package services

import (
	"encoding/xml"
	"net/url"
	"strings"

	"github.com/TokDenis/awblog/types"
)

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	News    string       `xml:"xmlns:news,attr"`
	Image   string       `xml:"xmlns:image,attr"`
	Urls    []sitemapUrl `xml:"url"`
}

type sitemapUrl struct {
	Loc        string        `xml:"loc"`
	LastMod    string        `xml:"lastmod,omitempty"`
	ChangeFreq string        `xml:"changefreq"`
	Priority   string        `xml:"priority"`
	Image      *sitemapImage `xml:"image:image,omitempty"`
}

type sitemapImage struct {
	Loc   string `xml:"image:loc"`
	Title string `xml:"image:title"`
}

var staticPages = []sitemapUrl{
	{Loc: "/", ChangeFreq: "daily", Priority: "1.0"},
	{Loc: "/posts", ChangeFreq: "daily", Priority: "0.9"},
	{Loc: "/about", ChangeFreq: "monthly", Priority: "0.7"},
}

// Sitemap lists the static pages, every post and every tag page under baseUrl.
func Sitemap(baseUrl string, posts []*types.Post) ([]byte, error) {
	baseUrl = strings.TrimRight(baseUrl, "/")

	set := urlSet{
		Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9",
		News:  "http://www.google.com/schemas/sitemap-news/0.9",
		Image: "http://www.google.com/schemas/sitemap-image/1.1",
	}

	for _, page := range staticPages {
		page.Loc = baseUrl + page.Loc
		set.Urls = append(set.Urls, page)
	}

	for _, post := range posts {
		lastMod := post.Metadata.ModificationTime
		if lastMod.IsZero() {
			lastMod = post.Metadata.CreatedTime
		}

		u := sitemapUrl{
			Loc:        baseUrl + post.Url(),
			LastMod:    lastMod.UTC().Format("2006-01-02"),
			ChangeFreq: "weekly",
			Priority:   "0.8",
		}
		if post.ImageUrl != "" {
			u.Image = &sitemapImage{Loc: post.ImageUrl, Title: post.Title}
		}
		set.Urls = append(set.Urls, u)
	}

	for _, tag := range uniqueTags(posts) {
		set.Urls = append(set.Urls, sitemapUrl{
			Loc:        baseUrl + "/posts/tag/" + url.PathEscape(tag),
			ChangeFreq: "weekly",
			Priority:   "0.6",
		})
	}

	b, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), b...), nil
}
