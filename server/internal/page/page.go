package page

import (
	"bytes"
	_ "embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/sensillum/sensillum/server/internal/buildinfo"
	"github.com/sensillum/sensillum/server/internal/config"
	"github.com/sensillum/sensillum/server/internal/respond"
	"github.com/sensillum/sensillum/server/internal/serverinfo"
)

//go:embed index.html
var indexHTML string

var indexTmpl = template.Must(template.New("index").Parse(indexHTML))

type indexData struct {
	// Info is rendered in a script context, where html/template encodes it
	// as JSON.
	Info      serverinfo.Snapshot
	Prefix    string
	Version   string
	BuildTime string
}

// Index serves the landing page with the request's snapshot embedded.
type Index struct {
	cfg *config.Config
}

// NewIndex returns the "/" handler.
func NewIndex(cfg *config.Config) *Index {
	return &Index{cfg: cfg}
}

func (p *Index) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data := indexData{
		Info:      serverinfo.Build(serverinfo.FromRequest(r), p.cfg),
		Prefix:    p.cfg.URLPrefix,
		Version:   buildinfo.Version,
		BuildTime: buildinfo.Time(),
	}

	var buf bytes.Buffer
	if err := indexTmpl.Execute(&buf, data); err != nil {
		slog.Error("page: render index", "err", err)
		respond.InternalError(w)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/html; charset=utf-8")
	hdr.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	hdr.Set("Pragma", "no-cache")
	hdr.Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck
}
