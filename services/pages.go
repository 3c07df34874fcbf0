package services

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/TokDenis/awblog/storage"
	"github.com/TokDenis/awblog/types"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttprouter"
)

//go:embed views/*.html
var viewsFS embed.FS

var pageFiles = []string{
	"home.html",
	"about.html",
	"posts.html",
	"post.html",
	"error.html",
	"login.html",
	"dashboard.html",
	"form.html",
}

var functions = template.FuncMap{
	"formatDate": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("02 Jan 2006")
	},
	"join": strings.Join,
	"raw": func(s string) template.HTML {
		return template.HTML(s)
	},
	"tagUrl": func(tag string) string {
		return tagPrefix + url.PathEscape(tag)
	},
}

type views struct {
	pages map[string]*template.Template
}

func loadViews() (*views, error) {
	v := &views{pages: make(map[string]*template.Template)}

	for _, page := range pageFiles {
		t, err := template.New("layout.html").Funcs(functions).ParseFS(viewsFS, "views/layout.html", "views/"+page)
		if err != nil {
			return nil, fmt.Errorf("parse view %s: %w", page, err)
		}
		v.pages[page] = t
	}
	return v, nil
}

// pageData is the view model every page template receives.
type pageData struct {
	Title   string
	Path    string
	Admin   bool
	Error   string
	Message string

	Post     *types.Post
	Posts    []*types.Post
	Featured []*types.Post
	Recent   []*types.Post
	Related  []*types.Post
	Tags     []string
	Tag      string
	Query    string
	Pager    *Page
	Stats    *types.BlogStats
	Form     *postForm
}

func (a *Api) render(ctx *fasthttp.RequestCtx, status int, page string, data *pageData) {
	if data == nil {
		data = &pageData{}
	}
	data.Path = string(ctx.Path())
	data.Admin = a.sessions.Authenticated(ctx)

	t, ok := a.views.pages[page]
	if !ok {
		log.Error().Str("page", page).Msg("unknown view")
		ctx.Error("Internal Server Error", fasthttp.StatusInternalServerError)
		return
	}

	buf := new(bytes.Buffer)

	if err := t.ExecuteTemplate(buf, "layout.html", data); err != nil {
		log.Error().Err(err).Str("page", page).Send()
		ctx.Error("Internal Server Error", fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetContentType("text/html; charset=utf-8")
	ctx.SetStatusCode(status)
	_, _ = buf.WriteTo(ctx)
}

func (a *Api) renderError(ctx *fasthttp.RequestCtx, status int, message string) {
	a.render(ctx, status, "error.html", &pageData{Title: message, Message: message})
}

func (a *Api) notFound(ctx *fasthttp.RequestCtx) {
	a.renderError(ctx, fasthttp.StatusNotFound, "Page not found")
}

func (a *Api) Home(ctx *fasthttp.RequestCtx, _ fasthttprouter.Params) {
	c := reqContext(ctx)

	featured, err := a.posts.Featured(c)
	if err != nil {
		a.internalErr(ctx, err)
		return
	}

	recent, err := a.posts.Recent(c, "", RecentCount)
	if err != nil {
		a.internalErr(ctx, err)
		return
	}

	tags, err := a.posts.Tags(c)
	if err != nil {
		a.internalErr(ctx, err)
		return
	}

	a.render(ctx, fasthttp.StatusOK, "home.html", &pageData{
		Featured: featured,
		Recent:   recent,
		Tags:     tags,
	})
}

func (a *Api) About(ctx *fasthttp.RequestCtx, _ fasthttprouter.Params) {
	a.render(ctx, fasthttp.StatusOK, "about.html", &pageData{Title: "About"})
}

func (a *Api) PostsList(ctx *fasthttp.RequestCtx, _ fasthttprouter.Params) {
	a.syncer.Kick()

	c := reqContext(ctx)

	page, err := strconv.Atoi(string(ctx.QueryArgs().Peek("page")))
	if err != nil || page < 1 {
		page = 1
	}

	pg, err := a.posts.Page(c, page, a.pageSize)
	if err != nil {
		a.internalErr(ctx, err)
		return
	}

	tags, err := a.posts.Tags(c)
	if err != nil {
		a.internalErr(ctx, err)
		return
	}

	a.render(ctx, fasthttp.StatusOK, "posts.html", &pageData{
		Title: "Posts",
		Posts: pg.Posts,
		Pager: &pg,
		Tags:  tags,
	})
}

func (a *Api) PostsByTag(ctx *fasthttp.RequestCtx, tag string) {
	c := reqContext(ctx)

	posts, err := a.posts.ByTag(c, tag)
	if err != nil {
		a.internalErr(ctx, err)
		return
	}

	tags, err := a.posts.Tags(c)
	if err != nil {
		a.internalErr(ctx, err)
		return
	}

	a.render(ctx, fasthttp.StatusOK, "posts.html", &pageData{
		Title: "#" + tag,
		Posts: posts,
		Tags:  tags,
		Tag:   tag,
	})
}

func (a *Api) Search(ctx *fasthttp.RequestCtx, _ fasthttprouter.Params) {
	c := reqContext(ctx)
	query := string(ctx.QueryArgs().Peek("q"))

	posts, err := a.posts.Search(c, query)
	if err != nil {
		a.internalErr(ctx, err)
		return
	}

	tags, err := a.posts.Tags(c)
	if err != nil {
		a.internalErr(ctx, err)
		return
	}

	a.render(ctx, fasthttp.StatusOK, "posts.html", &pageData{
		Title: "Search",
		Posts: posts,
		Tags:  tags,
		Query: query,
	})
}

func (a *Api) PostDetail(ctx *fasthttp.RequestCtx, p fasthttprouter.Params) {
	c := reqContext(ctx)

	post, err := a.posts.Get(c, p.ByName("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.renderError(ctx, fasthttp.StatusNotFound, "Post not found")
			return
		}
		a.internalErr(ctx, err)
		return
	}

	if err = a.posts.View(c, post.Id); err != nil {
		log.Warn().Err(err).Str("id", post.Id).Msg("count view")
	} else {
		post.Views++
	}

	related, err := a.posts.Related(c, post)
	if err != nil {
		a.internalErr(ctx, err)
		return
	}

	recent, err := a.posts.Recent(c, post.Id, RecentCount)
	if err != nil {
		a.internalErr(ctx, err)
		return
	}

	a.render(ctx, fasthttp.StatusOK, "post.html", &pageData{
		Title:   post.Title,
		Post:    post,
		Related: related,
		Recent:  recent,
	})
}
