// Package identity resolves who is acting on a request.
//
// The board never authenticates anyone itself; it asks a Provider for the
// current actor and for login/logout links. Anonymous requests are allowed
// and resolve to a nil actor.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/safari/pkg/schema"
)

// Provider is the identity collaborator.
type Provider interface {
	// CurrentActor returns the signed-in actor, or nil when anonymous.
	CurrentActor(r *http.Request) *schema.Actor
	// LoginURL returns a link that signs the user in and comes back to returnTo.
	LoginURL(returnTo string) string
	// LogoutURL returns a link that signs the user out and comes back to returnTo.
	LogoutURL(returnTo string) string
}

type actorKey struct{}

// WithActor stores actor in ctx.
func WithActor(ctx context.Context, actor *schema.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored by Middleware, or nil.
func ActorFromContext(ctx context.Context) *schema.Actor {
	actor, _ := ctx.Value(actorKey{}).(*schema.Actor)
	return actor
}

// Middleware resolves the actor once per request and stores it in the
// request context.
func Middleware(p Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := p.CurrentActor(c.Request)
		c.Request = c.Request.WithContext(WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

// Link returns the login or logout URL and its label, depending on whether
// an actor is signed in.
func Link(p Provider, actor *schema.Actor, returnTo string) (string, string) {
	if actor != nil {
		return p.LogoutURL(returnTo), "Logout"
	}
	return p.LoginURL(returnTo), "Login"
}

// DeriveActorID maps an email to a stable opaque id: the SHA-256 hex of the
// trimmed, lower-cased address.
func DeriveActorID(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}
