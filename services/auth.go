package services

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"time"

	"github.com/TokDenis/awblog/types"
	"github.com/gorilla/securecookie"
	"github.com/kataras/go-sessions/v3"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttprouter"
)

const (
	SessionCookie = "awblog_session"

	authKey  = "admin"
	draftKey = "draft"
)

// SessionStore is the per-visitor state the admin pages rely on.
type SessionStore interface {
	Authenticated(ctx *fasthttp.RequestCtx) bool
	SetAuthenticated(ctx *fasthttp.RequestCtx)
	Destroy(ctx *fasthttp.RequestCtx)
	StashDraft(ctx *fasthttp.RequestCtx, d *types.Draft) error
	// TakeDraft returns the stashed draft, if any, and clears it.
	TakeDraft(ctx *fasthttp.RequestCtx) *types.Draft
}

// Auth keeps admin sessions in go-sessions; the session id cookie is signed
// and encrypted with keys derived from secret.
type Auth struct {
	sess     *sessions.Sessions
	password string
}

func NewAuth(secret, password string, ttl time.Duration) *Auth {
	var hashKey, blockKey []byte
	if secret == "" {
		log.Warn().Msg("no session secret set, sessions will not survive a restart")
		hashKey = securecookie.GenerateRandomKey(32)
		blockKey = securecookie.GenerateRandomKey(32)
	} else {
		h := sha256.Sum256([]byte("hash:" + secret))
		b := sha256.Sum256([]byte("block:" + secret))
		hashKey, blockKey = h[:], b[:]
	}

	sc := securecookie.New(hashKey, blockKey)

	return &Auth{
		sess: sessions.New(sessions.Config{
			Cookie:  SessionCookie,
			Expires: ttl,
			Encode:  sc.Encode,
			Decode:  sc.Decode,
		}),
		password: password,
	}
}

// CheckPassword compares in constant time. An unset password never matches.
func (a *Auth) CheckPassword(password string) bool {
	if a.password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
}

func (a *Auth) Authenticated(ctx *fasthttp.RequestCtx) bool {
	ok, _ := a.sess.StartFasthttp(ctx).Get(authKey).(bool)
	return ok
}

func (a *Auth) SetAuthenticated(ctx *fasthttp.RequestCtx) {
	a.sess.StartFasthttp(ctx).Set(authKey, true)
}

func (a *Auth) Destroy(ctx *fasthttp.RequestCtx) {
	a.sess.DestroyFasthttp(ctx)
}

func (a *Auth) StashDraft(ctx *fasthttp.RequestCtx, d *types.Draft) error {
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	a.sess.StartFasthttp(ctx).Set(draftKey, string(b))
	return nil
}

func (a *Auth) TakeDraft(ctx *fasthttp.RequestCtx) *types.Draft {
	ses := a.sess.StartFasthttp(ctx)

	raw, ok := ses.Get(draftKey).(string)
	if !ok {
		return nil
	}
	ses.Delete(draftKey)

	var d types.Draft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		log.Warn().Err(err).Msg("drop unreadable draft")
		return nil
	}
	return &d
}

// AdminOnly sends visitors without an admin session to the login page.
func AdminOnly(store SessionStore, next fasthttprouter.Handle) fasthttprouter.Handle {
	return func(ctx *fasthttp.RequestCtx, p fasthttprouter.Params) {
		if !store.Authenticated(ctx) {
			ctx.Redirect("/admin/login", fasthttp.StatusFound)
			return
		}
		next(ctx, p)
	}
}

// AdminOnlyJSON is AdminOnly for API routes: it answers 401 instead of
// redirecting.
func AdminOnlyJSON(store SessionStore, next fasthttprouter.Handle) fasthttprouter.Handle {
	return func(ctx *fasthttp.RequestCtx, p fasthttprouter.Params) {
		if !store.Authenticated(ctx) {
			jsonErr(ctx, fasthttp.StatusUnauthorized, "Unauthorized")
			return
		}
		next(ctx, p)
	}
}
