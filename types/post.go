package types

import (
	"strings"
	"time"
)

type Post struct {
	Id          string   `json:"id"`
	Title       string   `json:"title"`
	Slug        string   `json:"slug"`
	Description string   `json:"description"`
	ImageUrl    string   `json:"image_url"`
	Tags        []string `json:"tags"`
	Author      string   `json:"author"`
	ReadingTime int      `json:"reading_time"`
	Content     string   `json:"content"`
	Metadata    Metadata `json:"metadata"`
	Featured    bool     `json:"featured"`
	Views       int64    `json:"views"`
}

type Metadata struct {
	CreatedTime      time.Time `json:"created_time"`
	ModificationTime time.Time `json:"modification_time"`
	Version          string    `json:"version"`
	Status           string    `json:"status"`
	SeoKeywords      string    `json:"seo_keywords"`
}

// HasTag reports whether the post carries tag, ignoring case.
func (p *Post) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Url is the public path of the post.
func (p *Post) Url() string {
	return "/posts/" + p.Id
}

type BlogStats struct {
	Total          int   `json:"total"`
	TotalViews     int64 `json:"totalViews"`
	TotalTags      int   `json:"totalTags"`
	AverageViews   int64 `json:"averageViews"`
	NewestPost     *Post `json:"newestPost"`
	MostViewedPost *Post `json:"mostViewedPost"`
}
