package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/TokDenis/awblog/gitsync"
	"github.com/TokDenis/awblog/storage"
	"github.com/TokDenis/awblog/types"
	"github.com/google/uuid"
	"github.com/lab259/cors"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttprouter"
)

const (
	DefaultPageSize = 10
	RecentCount     = 5

	tagPrefix = "/posts/tag/"
)

type Options struct {
	Store     storage.Store
	Syncer    *gitsync.Syncer
	Assistant *Assistant
	Sessions  SessionStore
	// CheckPassword validates the admin login form.
	CheckPassword func(password string) bool

	BaseUrl     string
	StaticDir   string
	PageSize    int
	CorsOrigins []string
}

type Api struct {
	posts     *Posts
	admin     *Admin
	syncer    *gitsync.Syncer
	assistant *Assistant
	sessions  SessionStore
	password  func(string) bool
	views     *views

	baseUrl  string
	pageSize int

	router  *fasthttprouter.Router
	handler fasthttp.RequestHandler
}

func NewApi(o Options) (*Api, error) {
	if o.Store == nil || o.Sessions == nil {
		return nil, errors.New("api: store and sessions are required")
	}

	v, err := loadViews()
	if err != nil {
		return nil, err
	}

	a := &Api{
		posts:     NewPosts(o.Store),
		admin:     NewAdmin(o.Store),
		syncer:    o.Syncer,
		assistant: o.Assistant,
		sessions:  o.Sessions,
		password:  o.CheckPassword,
		views:     v,
		baseUrl:   strings.TrimRight(o.BaseUrl, "/"),
		pageSize:  o.PageSize,
	}
	if a.pageSize <= 0 {
		a.pageSize = DefaultPageSize
	}
	if a.password == nil {
		a.password = func(string) bool { return false }
	}

	r := fasthttprouter.New()
	r.NotFound = a.notFound
	r.PanicHandler = a.recoverPanic

	r.GET("/", a.Home)
	r.GET("/about", a.About)
	r.GET("/posts", a.PostsList)
	r.GET("/posts/:id", a.PostDetail)
	r.GET("/search", a.Search)
	r.GET("/sitemap.xml", a.Sitemap)

	r.GET("/api/stats", a.ApiStats)
	r.GET("/api/posts", a.ApiPosts)
	r.GET("/api/tags", a.ApiTags)
	r.GET("/api/qr/:postId", a.QR)
	r.POST("/api/chat", a.Chat)
	r.POST("/api/recommend", a.Recommend)
	// forced syncs hit the remote, so only the dashboard may trigger them
	r.GET("/api/pull-posts", AdminOnlyJSON(a.sessions, a.PullPosts))
	r.POST("/api/pull-posts", AdminOnlyJSON(a.sessions, a.PullPosts))

	r.GET("/admin/login", a.LoginPage)
	r.POST("/admin/login", a.Login)
	r.GET("/admin/logout", a.Logout)
	r.GET("/admin/dashboard", AdminOnly(a.sessions, a.Dashboard))
	r.GET("/admin/posts/new", AdminOnly(a.sessions, a.NewPostPage))
	r.POST("/admin/posts/new", AdminOnly(a.sessions, a.CreatePost))
	r.GET("/admin/posts/edit/:id", AdminOnly(a.sessions, a.EditPostPage))
	r.POST("/admin/posts/edit/:id", AdminOnly(a.sessions, a.UpdatePost))
	r.POST("/admin/posts/delete/:id", AdminOnly(a.sessions, a.DeletePost))
	r.POST("/admin/posts/import", AdminOnly(a.sessions, a.ImportPost))

	if o.StaticDir != "" {
		r.ServeFiles("/static/*filepath", o.StaticDir)
	}

	a.router = r

	origins := o.CorsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	cs := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			fasthttp.MethodHead,
			fasthttp.MethodGet,
			fasthttp.MethodPost,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	a.handler = cs.Handler(a.accessLog(a.dispatch))

	return a, nil
}

func (a *Api) Handler() fasthttp.RequestHandler {
	return a.handler
}

func (a *Api) Server() *fasthttp.Server {
	return &fasthttp.Server{
		Name:         "awblog",
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Second * 30,
		WriteTimeout: time.Second * 60,
		Handler:      a.handler,
	}
}

// dispatch sends tag listings past the router, whose tree cannot hold both
// /posts/:id and /posts/tag/:tag.
func (a *Api) dispatch(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())

	switch {
	case strings.HasPrefix(path, tagPrefix) && ctx.IsGet():
		tag, err := url.PathUnescape(strings.TrimPrefix(path, tagPrefix))
		if err != nil || tag == "" || strings.Contains(tag, "/") {
			a.notFound(ctx)
			return
		}
		a.PostsByTag(ctx, tag)
	default:
		a.router.Handler(ctx)
	}
}

type ctxKey string

const requestIdKey ctxKey = "request_id"

func (a *Api) accessLog(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		id := uuid.NewString()

		ctx.SetUserValue(string(requestIdKey), id)
		ctx.Response.Header.Set("X-Request-Id", id)

		next(ctx)

		log.Info().
			Str("id", id).
			Str("method", string(ctx.Method())).
			Str("path", string(ctx.Path())).
			Int("status", ctx.Response.StatusCode()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

// reqContext carries the request id into store calls.
func reqContext(ctx *fasthttp.RequestCtx) context.Context {
	id, _ := ctx.UserValue(string(requestIdKey)).(string)
	return context.WithValue(context.Background(), requestIdKey, id)
}

func (a *Api) recoverPanic(ctx *fasthttp.RequestCtx, rcv interface{}) {
	log.Error().Interface("panic", rcv).Str("path", string(ctx.Path())).Msg("handler panic")
	a.renderError(ctx, fasthttp.StatusInternalServerError, "Something went wrong")
}

func (a *Api) internalErr(ctx *fasthttp.RequestCtx, err error) {
	log.Error().Err(err).Str("path", string(ctx.Path())).Send()
	a.renderError(ctx, fasthttp.StatusInternalServerError, "Something went wrong")
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Send()
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetStatusCode(status)
	_, _ = ctx.Write(b)
}

type apiError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func jsonErr(ctx *fasthttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, apiError{Success: false, Error: msg})
}

func (a *Api) ApiStats(ctx *fasthttp.RequestCtx, _ fasthttprouter.Params) {
	stats, err := a.posts.Stats(reqContext(ctx))
	if err != nil {
		log.Error().Err(err).Send()
		jsonErr(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, stats)
}

func (a *Api) ApiPosts(ctx *fasthttp.RequestCtx, _ fasthttprouter.Params) {
	posts, err := a.posts.All(reqContext(ctx))
	if err != nil {
		log.Error().Err(err).Send()
		jsonErr(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, posts)
}

func (a *Api) ApiTags(ctx *fasthttp.RequestCtx, _ fasthttprouter.Params) {
	tags, err := a.posts.Tags(reqContext(ctx))
	if err != nil {
		log.Error().Err(err).Send()
		jsonErr(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, tags)
}

func (a *Api) Sitemap(ctx *fasthttp.RequestCtx, _ fasthttprouter.Params) {
	posts, err := a.posts.All(reqContext(ctx))
	if err != nil {
		log.Error().Err(err).Send()
		ctx.Error("Error generating sitemap", fasthttp.StatusInternalServerError)
		return
	}

	b, err := Sitemap(a.siteUrl(ctx), posts)
	if err != nil {
		log.Error().Err(err).Send()
		ctx.Error("Error generating sitemap", fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetContentType("application/xml; charset=utf-8")
	ctx.SetStatusCode(fasthttp.StatusOK)
	_, _ = ctx.Write(b)
}

// siteUrl is the configured public url, or the scheme and host of the request.
func (a *Api) siteUrl(ctx *fasthttp.RequestCtx) string {
	if a.baseUrl != "" {
		return a.baseUrl
	}
	return string(ctx.URI().Scheme()) + "://" + string(ctx.Host())
}

func (a *Api) Chat(ctx *fasthttp.RequestCtx, _ fasthttprouter.Params) {
	var req types.ChatReq

	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		jsonErr(ctx, fasthttp.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Query == "" || req.PostId == "" {
		jsonErr(ctx, fasthttp.StatusBadRequest, "Missing query or postId")
		return
	}

	post, err := a.posts.Get(reqContext(ctx), req.PostId)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			jsonErr(ctx, fasthttp.StatusNotFound, "Post not found")
			return
		}
		log.Error().Err(err).Send()
		jsonErr(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(ctx, fasthttp.StatusOK, a.assistant.Ask(req.Query, post, req.ConversationId))
}

func (a *Api) Recommend(ctx *fasthttp.RequestCtx, _ fasthttprouter.Params) {
	var req types.RecommendReq

	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		jsonErr(ctx, fasthttp.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Query == "" {
		jsonErr(ctx, fasthttp.StatusBadRequest, "Missing query")
		return
	}

	posts, err := a.posts.All(reqContext(ctx))
	if err != nil {
		log.Error().Err(err).Send()
		jsonErr(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(ctx, fasthttp.StatusOK, a.assistant.Recommend(req.Query, posts, req.ConversationId))
}

type qrReply struct {
	Success bool   `json:"success"`
	QR      string `json:"qr"`
	Url     string `json:"url"`
}

func (a *Api) QR(ctx *fasthttp.RequestCtx, p fasthttprouter.Params) {
	post, err := a.posts.Get(reqContext(ctx), p.ByName("postId"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			jsonErr(ctx, fasthttp.StatusNotFound, "Post not found")
			return
		}
		log.Error().Err(err).Send()
		jsonErr(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}

	link := a.siteUrl(ctx) + post.Url()

	qr, err := QRDataURI(link)
	if err != nil {
		log.Error().Err(err).Send()
		jsonErr(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(ctx, fasthttp.StatusOK, qrReply{Success: true, QR: qr, Url: link})
}

// PullPosts forces a repository sync regardless of the throttle window.
func (a *Api) PullPosts(ctx *fasthttp.RequestCtx, _ fasthttprouter.Params) {
	res := a.syncer.Sync(reqContext(ctx), true)

	status := fasthttp.StatusOK
	if !res.Success {
		status = fasthttp.StatusInternalServerError
	}
	writeJSON(ctx, status, res)
}
