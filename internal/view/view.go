// Package view renders the board's pages and fragments.
package view

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/celerix-dev/safari/internal/board"
	"github.com/celerix-dev/safari/pkg/schema"
)

//go:embed templates/*.html
var templateFS embed.FS

// View names one of the renderable templates.
type View string

const (
	Main  View = "main"
	Items View = "items"
	Ajax  View = "ajax"
)

var viewFiles = map[View]string{
	Main:  "index.html",
	Items: "items.html",
	Ajax:  "ajax.html",
}

// Page is the value bundle every view is rendered with.
type Page struct {
	Actor       *schema.Actor
	Items       []schema.ActionItem
	URL         string
	URLLabel    string
	Stats       schema.Stats
	Fingerprint string
	PollMillis  int64
}

// NewPage assembles the data shared by all three views.
func NewPage(snap board.Snapshot, actor *schema.Actor, url, urlLabel string) Page {
	return Page{
		Actor:       actor,
		Items:       snap.Items,
		URL:         url,
		URLLabel:    urlLabel,
		Stats:       snap.Stats,
		Fingerprint: Fingerprint(snap.Items),
	}
}

// Renderer holds the parsed template set. It is built once at startup and
// never modified, so it is safe for concurrent use.
type Renderer struct {
	tmpl *template.Template
	poll time.Duration
}

// NewRenderer parses the embedded templates. pollInterval drives how often
// the main page polls the ajax view.
func NewRenderer(pollInterval time.Duration) (*Renderer, error) {
	tmpl, err := template.New("").
		Funcs(template.FuncMap{"pst": pst}).
		Option("missingkey=error").
		ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl, poll: pollInterval}, nil
}

// Render writes view v for page p to w.
func (r *Renderer) Render(w io.Writer, v View, p Page) error {
	name, ok := viewFiles[v]
	if !ok {
		return fmt.Errorf("unknown view %q", v)
	}
	p.PollMillis = r.poll.Milliseconds()
	return r.tmpl.ExecuteTemplate(w, name, p)
}
