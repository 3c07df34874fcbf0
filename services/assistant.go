package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/TokDenis/awblog/types"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

var ErrAssistantDisabled = errors.New("assistant is not configured")

const (
	DefaultChatUser = "blog-user"
	recommendUser   = "blog-visitor"

	recommendInstruction = "You are a blog assistant that recommends articles. " +
		"Based on the user's question and the list of available posts, recommend the most relevant ones. " +
		"Answer in markdown and link each recommended post as [Title](url). " +
		"Briefly explain why each post is relevant to what the user wants to learn."
)

// Reply is what the chat endpoints return to the browser.
type Reply struct {
	Success        bool            `json:"success"`
	Answer         string          `json:"answer,omitempty"`
	ConversationId string          `json:"conversation_id,omitempty"`
	MessageId      string          `json:"message_id,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	Error          string          `json:"error,omitempty"`
}

type chatMessage struct {
	Inputs         map[string]interface{} `json:"inputs"`
	Query          string                 `json:"query"`
	ResponseMode   string                 `json:"response_mode"`
	User           string                 `json:"user"`
	ConversationId string                 `json:"conversation_id"`
}

type chatAnswer struct {
	Answer         string          `json:"answer"`
	ConversationId string          `json:"conversation_id"`
	MessageId      string          `json:"message_id"`
	Metadata       json.RawMessage `json:"metadata"`
}

type postContext struct {
	ActualPost *types.Post `json:"actual_post"`
	UserPrompt string      `json:"user_prompt"`
}

type postLink struct {
	Title       string   `json:"title"`
	Url         string   `json:"url"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

type recommendContext struct {
	Instruction    string     `json:"instruction"`
	AvailablePosts []postLink `json:"available_posts"`
	UserQuery      string     `json:"user_query"`
}

// Assistant forwards questions to a Dify style /chat-messages endpoint.
type Assistant struct {
	url    string
	key    string
	user   string
	client *fasthttp.Client
}

func NewAssistant(url, key, user string) *Assistant {
	if user == "" {
		user = DefaultChatUser
	}
	return &Assistant{
		url:    strings.TrimRight(url, "/"),
		key:    key,
		user:   user,
		client: &fasthttp.Client{Name: "awblog"},
	}
}

func (a *Assistant) Enabled() bool {
	return a != nil && a.url != "" && a.key != ""
}

// Ask sends a question about one post.
func (a *Assistant) Ask(query string, post *types.Post, conversationId string) Reply {
	return a.send(postContext{ActualPost: post, UserPrompt: query}, "", conversationId)
}

// Recommend asks for reading suggestions among posts.
func (a *Assistant) Recommend(query string, posts []*types.Post, conversationId string) Reply {
	links := make([]postLink, 0, len(posts))
	for _, p := range posts {
		links = append(links, postLink{
			Title:       p.Title,
			Url:         p.Url(),
			Description: p.Description,
			Tags:        p.Tags,
		})
	}

	return a.send(recommendContext{
		Instruction:    recommendInstruction,
		AvailablePosts: links,
		UserQuery:      query,
	}, recommendUser, conversationId)
}

func (a *Assistant) send(payload interface{}, user, conversationId string) Reply {
	answer, err := a.do(payload, user, conversationId)
	if err != nil {
		log.Error().Err(err).Msg("assistant request")
		return Reply{Success: false, Error: err.Error()}
	}

	return Reply{
		Success:        true,
		Answer:         answer.Answer,
		ConversationId: answer.ConversationId,
		MessageId:      answer.MessageId,
		Metadata:       answer.Metadata,
	}
}

func (a *Assistant) do(payload interface{}, user, conversationId string) (*chatAnswer, error) {
	if !a.Enabled() {
		return nil, ErrAssistantDisabled
	}
	if user == "" {
		user = a.user
	}

	query, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(chatMessage{
		Inputs:         map[string]interface{}{},
		Query:          string(query),
		ResponseMode:   "blocking",
		User:           user,
		ConversationId: conversationId,
	})
	if err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(a.url + "/chat-messages")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.SetBody(body)

	if err = a.client.Do(req, resp); err != nil {
		return nil, err
	}

	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return nil, fmt.Errorf("assistant api error: %d", code)
	}

	var answer chatAnswer

	if err = json.Unmarshal(resp.Body(), &answer); err != nil {
		return nil, fmt.Errorf("decode assistant answer: %w", err)
	}

	return &answer, nil
}
