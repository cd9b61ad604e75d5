package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/celerix-dev/safari/internal/vault"
	"github.com/celerix-dev/safari/pkg/schema"
)

// ErrEmptyEmail is returned when sign-in is attempted without an address.
var ErrEmptyEmail = errors.New("email cannot be empty")

var loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Sign in</title></head>
<body>
  <form method="post" action="/login">
    <input type="hidden" name="continue" value="{{.}}">
    <label>Email <input type="email" name="email" required></label>
    <button type="submit">Sign in</button>
  </form>
</body>
</html>
`))

// SessionProvider keeps the actor in an AES-GCM sealed cookie.
type SessionProvider struct {
	key        []byte
	cookieName string
	logger     *zap.Logger
}

var _ Provider = (*SessionProvider)(nil)

// NewSessionProvider creates a cookie session provider. key must be 32 bytes.
func NewSessionProvider(key []byte, cookieName string, logger *zap.Logger) (*SessionProvider, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("session key must be 32 bytes, got %d", len(key))
	}
	if cookieName == "" {
		cookieName = "safari_session"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionProvider{key: key, cookieName: cookieName, logger: logger}, nil
}

func (p *SessionProvider) CurrentActor(r *http.Request) *schema.Actor {
	cookie, err := r.Cookie(p.cookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	plain, err := vault.Decrypt(cookie.Value, p.key)
	if err != nil {
		p.logger.Debug("ignoring unreadable session cookie", zap.Error(err))
		return nil
	}

	var actor schema.Actor
	if err := json.Unmarshal([]byte(plain), &actor); err != nil || actor.ID == "" {
		p.logger.Debug("ignoring malformed session", zap.Error(err))
		return nil
	}
	return &actor
}

func (p *SessionProvider) LoginURL(returnTo string) string {
	return "/login?continue=" + url.QueryEscape(returnTo)
}

func (p *SessionProvider) LogoutURL(returnTo string) string {
	return "/logout?continue=" + url.QueryEscape(returnTo)
}

// SignIn sets the session cookie for email and returns the resulting actor.
func (p *SessionProvider) SignIn(w http.ResponseWriter, email string) (*schema.Actor, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrEmptyEmail
	}
	actor := &schema.Actor{ID: DeriveActorID(email), Email: email}

	raw, err := json.Marshal(actor)
	if err != nil {
		return nil, err
	}
	sealed, err := vault.Encrypt(string(raw), p.key)
	if err != nil {
		return nil, fmt.Errorf("seal session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     p.cookieName,
		Value:    sealed,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return actor, nil
}

// SignOut clears the session cookie.
func (p *SessionProvider) SignOut(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     p.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Register mounts the /login and /logout handlers.
func (p *SessionProvider) Register(r gin.IRoutes) {
	r.GET("/login", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.Status(http.StatusOK)
		if err := loginPage.Execute(c.Writer, safeReturn(c.Query("continue"))); err != nil {
			p.logger.Error("render login page", zap.Error(err))
		}
	})

	r.POST("/login", func(c *gin.Context) {
		actor, err := p.SignIn(c.Writer, c.PostForm("email"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		p.logger.Info("signed in", zap.String("actor_id", actor.ID))
		c.Redirect(http.StatusFound, safeReturn(c.PostForm("continue")))
	})

	r.GET("/logout", func(c *gin.Context) {
		p.SignOut(c.Writer)
		c.Redirect(http.StatusFound, safeReturn(c.Query("continue")))
	})
}

// safeReturn only allows local absolute paths as redirect targets.
func safeReturn(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}
