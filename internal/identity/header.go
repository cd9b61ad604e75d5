package identity

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/celerix-dev/safari/pkg/schema"
)

// HeaderProvider trusts identity headers set by a fronting auth proxy.
// Only deploy it behind a proxy that strips these headers from clients.
type HeaderProvider struct {
	UserHeader  string
	EmailHeader string
	// LoginPattern and LogoutPattern may contain one %s, replaced by the
	// query-escaped return URL.
	LoginPattern  string
	LogoutPattern string
}

var _ Provider = (*HeaderProvider)(nil)

func (p *HeaderProvider) CurrentActor(r *http.Request) *schema.Actor {
	user := strings.TrimSpace(r.Header.Get(p.UserHeader))
	var email string
	if p.EmailHeader != "" {
		email = strings.TrimSpace(r.Header.Get(p.EmailHeader))
	}
	if user == "" {
		return nil
	}
	if email == "" && strings.Contains(user, "@") {
		email = user
	}
	return &schema.Actor{ID: user, Email: email}
}

func (p *HeaderProvider) LoginURL(returnTo string) string {
	return expand(p.LoginPattern, returnTo)
}

func (p *HeaderProvider) LogoutURL(returnTo string) string {
	return expand(p.LogoutPattern, returnTo)
}

func expand(pattern, returnTo string) string {
	switch {
	case pattern == "":
		return returnTo
	case strings.Contains(pattern, "%s"):
		return strings.Replace(pattern, "%s", url.QueryEscape(returnTo), 1)
	default:
		return pattern
	}
}
