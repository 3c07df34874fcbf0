package services

import (
	"errors"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/TokDenis/awblog/storage"
	"github.com/TokDenis/awblog/types"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttprouter"
)

// postForm holds the admin editor fields as the browser sent them.
type postForm struct {
	Action      string
	Editing     bool
	Id          string
	Title       string
	Slug        string
	Description string
	ImageUrl    string
	Tags        string
	Author      string
	ReadingTime string
	Content     string
	Featured    bool
	Status      string
	SeoKeywords string
}

func formFromPost(p *types.Post) *postForm {
	return &postForm{
		Action:      "/admin/posts/edit/" + p.Id,
		Editing:     true,
		Id:          p.Id,
		Title:       p.Title,
		Slug:        p.Slug,
		Description: p.Description,
		ImageUrl:    p.ImageUrl,
		Tags:        strings.Join(p.Tags, ", "),
		Author:      p.Author,
		ReadingTime: strconv.Itoa(p.ReadingTime),
		Content:     p.Content,
		Featured:    p.Featured,
		Status:      p.Metadata.Status,
		SeoKeywords: p.Metadata.SeoKeywords,
	}
}

func formFromDraft(d *types.Draft) *postForm {
	f := &postForm{
		Action:      "/admin/posts/new",
		Title:       d.Title,
		Slug:        d.Slug,
		Description: d.Description,
		ImageUrl:    d.ImageUrl,
		Tags:        strings.Join(d.Tags, ", "),
		Author:      d.Author,
		Content:     d.Content,
		Featured:    d.Featured,
		SeoKeywords: d.SeoKeywords,
	}
	if d.ReadingTime > 0 {
		f.ReadingTime = strconv.Itoa(d.ReadingTime)
	}
	return f
}

// formValues reads the submitted fields of a urlencoded or multipart form.
// Repeated fields keep every value in order.
func formValues(ctx *fasthttp.RequestCtx) map[string][]string {
	values := make(map[string][]string)

	if mf, err := ctx.MultipartForm(); err == nil {
		for k, v := range mf.Value {
			values[k] = append(values[k], v...)
		}
		return values
	}

	ctx.PostArgs().VisitAll(func(k, v []byte) {
		values[string(k)] = append(values[string(k)], string(v))
	})
	return values
}

func last(values map[string][]string, key string) (string, bool) {
	v, ok := values[key]
	if !ok || len(v) == 0 {
		return "", false
	}
	return strings.TrimSpace(v[len(v)-1]), true
}

// readPostForm parses the editor form. The featured checkbox is preceded by a
// hidden "false" field so the last value wins.
func readPostForm(ctx *fasthttp.RequestCtx) (*postForm, map[string][]string) {
	values := formValues(ctx)

	f := &postForm{}
	f.Id, _ = last(values, "id")
	f.Title, _ = last(values, "title")
	f.Slug, _ = last(values, "slug")
	f.Description, _ = last(values, "description")
	f.ImageUrl, _ = last(values, "image_url")
	f.Tags, _ = last(values, "tags")
	f.Author, _ = last(values, "author")
	f.ReadingTime, _ = last(values, "reading_time")
	f.Status, _ = last(values, "status")
	f.SeoKeywords, _ = last(values, "seo_keywords")

	if content, ok := values["content"]; ok && len(content) > 0 {
		f.Content = content[len(content)-1]
	}
	if featured, ok := last(values, "featured"); ok {
		f.Featured = featured == "true" || featured == "on"
	}
	return f, values
}

func (f *postForm) input() types.PostInput {
	rt, _ := strconv.Atoi(f.ReadingTime)
	return types.PostInput{
		Id:          f.Id,
		Title:       f.Title,
		Slug:        f.Slug,
		Description: f.Description,
		ImageUrl:    f.ImageUrl,
		Tags:        types.SplitTags(f.Tags),
		Author:      f.Author,
		ReadingTime: rt,
		Content:     f.Content,
		Featured:    f.Featured,
		Status:      f.Status,
		SeoKeywords: f.SeoKeywords,
	}
}

// patch keeps only the fields present in the submitted form.
func (f *postForm) patch(values map[string][]string) types.PostPatch {
	var p types.PostPatch

	str := func(key, v string) *string {
		if _, ok := values[key]; !ok {
			return nil
		}
		return &v
	}

	p.Title = str("title", f.Title)
	p.Slug = str("slug", f.Slug)
	p.Description = str("description", f.Description)
	p.ImageUrl = str("image_url", f.ImageUrl)
	p.Author = str("author", f.Author)
	p.Content = str("content", f.Content)
	p.Status = str("status", f.Status)
	p.SeoKeywords = str("seo_keywords", f.SeoKeywords)

	if _, ok := values["tags"]; ok {
		p.Tags = types.SplitTags(f.Tags)
	}
	if _, ok := values["reading_time"]; ok {
		if rt, err := strconv.Atoi(f.ReadingTime); err == nil {
			p.ReadingTime = &rt
		}
	}
	if _, ok := values["featured"]; ok {
		featured := f.Featured
		p.Featured = &featured
	}
	return p
}

func (a *Api) LoginPage(ctx *fasthttp.RequestCtx, _ fasthttprouter.Params) {
	if a.sessions.Authenticated(ctx) {
		ctx.Redirect("/admin/dashboard", fasthttp.StatusFound)
		return
	}
	a.render(ctx, fasthttp.StatusOK, "login.html", &pageData{Title: "Admin login"})
}

func (a *Api) Login(ctx *fasthttp.RequestCtx, _ fasthttprouter.Params) {
	password, _ := last(formValues(ctx), "password")

	if !a.password(password) {
		log.Warn().Str("ip", ctx.RemoteIP().String()).Msg("failed admin login")
		a.render(ctx, fasthttp.StatusUnauthorized, "login.html", &pageData{
			Title: "Admin login",
			Error: "Wrong password",
		})
		return
	}

	a.sessions.SetAuthenticated(ctx)
	ctx.Redirect("/admin/dashboard", fasthttp.StatusFound)
}

func (a *Api) Logout(ctx *fasthttp.RequestCtx, _ fasthttprouter.Params) {
	a.sessions.Destroy(ctx)
	ctx.Redirect("/", fasthttp.StatusFound)
}

func (a *Api) Dashboard(ctx *fasthttp.RequestCtx, _ fasthttprouter.Params) {
	a.dashboard(ctx, fasthttp.StatusOK, "")
}

func (a *Api) dashboard(ctx *fasthttp.RequestCtx, status int, formErr string) {
	c := reqContext(ctx)

	posts, err := a.posts.All(c)
	if err != nil {
		a.internalErr(ctx, err)
		return
	}

	a.render(ctx, status, "dashboard.html", &pageData{
		Title: "Dashboard",
		Error: formErr,
		Posts: posts,
		Stats: computeStats(posts),
	})
}

func (a *Api) NewPostPage(ctx *fasthttp.RequestCtx, _ fasthttprouter.Params) {
	form := &postForm{Action: "/admin/posts/new"}
	if d := a.sessions.TakeDraft(ctx); d != nil {
		form = formFromDraft(d)
	}

	a.render(ctx, fasthttp.StatusOK, "form.html", &pageData{Title: "New post", Form: form})
}

func (a *Api) CreatePost(ctx *fasthttp.RequestCtx, _ fasthttprouter.Params) {
	c := reqContext(ctx)

	form, _ := readPostForm(ctx)
	form.Action = "/admin/posts/new"

	if form.Slug == "" {
		form.Slug = Slugify(form.Title)
	}
	if form.Id == "" && form.Slug != "" {
		id, err := a.admin.NextId(c, form.Slug)
		if err != nil {
			a.internalErr(ctx, err)
			return
		}
		form.Id = id
	}

	if _, err := a.admin.Create(c, form.input()); err != nil {
		a.formError(ctx, form, "New post", err)
		return
	}

	ctx.Redirect("/admin/dashboard", fasthttp.StatusSeeOther)
}

func (a *Api) EditPostPage(ctx *fasthttp.RequestCtx, p fasthttprouter.Params) {
	post, err := a.posts.Get(reqContext(ctx), p.ByName("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.renderError(ctx, fasthttp.StatusNotFound, "Post not found")
			return
		}
		a.internalErr(ctx, err)
		return
	}

	a.render(ctx, fasthttp.StatusOK, "form.html", &pageData{Title: "Edit post", Form: formFromPost(post)})
}

func (a *Api) UpdatePost(ctx *fasthttp.RequestCtx, p fasthttprouter.Params) {
	id := p.ByName("id")

	form, values := readPostForm(ctx)
	form.Id = id
	form.Action = "/admin/posts/edit/" + id
	form.Editing = true

	if _, err := a.admin.Update(reqContext(ctx), id, form.patch(values)); err != nil {
		a.formError(ctx, form, "Edit post", err)
		return
	}

	ctx.Redirect("/admin/dashboard", fasthttp.StatusSeeOther)
}

func (a *Api) DeletePost(ctx *fasthttp.RequestCtx, p fasthttprouter.Params) {
	if err := a.admin.Delete(reqContext(ctx), p.ByName("id")); err != nil {
		a.internalErr(ctx, err)
		return
	}
	ctx.Redirect("/admin/dashboard", fasthttp.StatusSeeOther)
}

// ImportPost stages an uploaded JSON document for the create form.
func (a *Api) ImportPost(ctx *fasthttp.RequestCtx, _ fasthttprouter.Params) {
	var body []byte

	if fh, err := ctx.FormFile("file"); err == nil {
		b, err := readUpload(fh)
		if err != nil {
			a.dashboard(ctx, fasthttp.StatusBadRequest, "Could not read the uploaded file")
			return
		}
		body = b
	} else {
		body = ctx.PostBody()
	}

	draft, err := ParseDraft(body)
	if err != nil {
		a.dashboard(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}

	if err = a.sessions.StashDraft(ctx, draft); err != nil {
		a.internalErr(ctx, err)
		return
	}

	ctx.Redirect("/admin/posts/new", fasthttp.StatusSeeOther)
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}

// formError re-renders the editor with the failure, or the error page when
// the failure is not the user's.
func (a *Api) formError(ctx *fasthttp.RequestCtx, form *postForm, title string, err error) {
	var status int
	switch {
	case errors.Is(err, storage.ErrValidation):
		status = fasthttp.StatusBadRequest
	case errors.Is(err, storage.ErrConflict):
		status = fasthttp.StatusConflict
	case errors.Is(err, storage.ErrNotFound):
		a.renderError(ctx, fasthttp.StatusNotFound, "Post not found")
		return
	default:
		a.internalErr(ctx, err)
		return
	}

	a.render(ctx, status, "form.html", &pageData{Title: title, Error: err.Error(), Form: form})
}
