package types

import "strings"

// PostInput is the full payload for a new post. Id is assigned by the caller.
type PostInput struct {
	Id          string   `json:"id"`
	Title       string   `json:"title"`
	Slug        string   `json:"slug"`
	Description string   `json:"description"`
	ImageUrl    string   `json:"image_url"`
	Tags        []string `json:"tags"`
	Author      string   `json:"author"`
	ReadingTime int      `json:"reading_time"`
	Content     string   `json:"content"`
	Featured    bool     `json:"featured"`
	Status      string   `json:"status"`
	SeoKeywords string   `json:"seo_keywords"`
}

// PostPatch is a partial update: nil fields keep their stored value, and so do
// blank required fields (title, slug, description, content, tags), author
// and status.
type PostPatch struct {
	Title       *string
	Slug        *string
	Description *string
	ImageUrl    *string
	Tags        []string
	Author      *string
	ReadingTime *int
	Content     *string
	Featured    *bool
	Status      *string
	SeoKeywords *string
}

// Draft is an imported post document waiting for the admin create form.
type Draft struct {
	Title       string   `json:"title"`
	Slug        string   `json:"slug"`
	Description string   `json:"description"`
	ImageUrl    string   `json:"image_url"`
	Tags        []string `json:"tags"`
	Author      string   `json:"author"`
	ReadingTime int      `json:"reading_time"`
	Content     string   `json:"content"`
	Featured    bool     `json:"featured"`
	SeoKeywords string   `json:"seo_keywords"`
}

type ChatReq struct {
	Query          string `json:"query"`
	PostId         string `json:"postId"`
	ConversationId string `json:"conversationId"`
}

type RecommendReq struct {
	Query          string `json:"query"`
	ConversationId string `json:"conversationId"`
}

// SplitTags turns "go, web,,db" into [go web db].
func SplitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
