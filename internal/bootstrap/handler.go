package bootstrap

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"video-upscaler/internal/asset"
	"video-upscaler/internal/metrics"
)

// Handler serves what the embedded frontend cannot: asset previews by
// handle id, delivered artifacts and metrics.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics.RequestMiddleware(a.Metrics))

	r.Get("/preview/{id}", a.servePreview)
	r.Get("/artifacts/{name}", a.serveArtifact)
	r.Method(http.MethodGet, "/metrics", a.Metrics.Handler())
	return r
}

func (a *App) servePreview(w http.ResponseWriter, r *http.Request) {
	payload, err := a.Registry.Resolve(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, asset.ErrHandleRevoked) || errors.Is(err, asset.ErrHandleNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rs, err := payload.Open()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer rs.Close()

	if mt, err := mimetype.DetectReader(rs); err == nil {
		w.Header().Set("Content-Type", mt.String())
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, r, "", time.Time{}, rs)
}

func (a *App) serveArtifact(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(a.downloadDir(), name)
	f, err := os.Open(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeContent(w, r, name, info.ModTime(), f)
}
