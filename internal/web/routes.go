package web

import (
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-checkin/internal/web/handlers"
	"github.com/kozaktomas/face-checkin/internal/web/static"
)

func (s *Server) setupRoutes() {
	checkinHandler := handlers.NewCheckinHandler(s.service, s.log)
	identitiesHandler := handlers.NewIdentitiesHandler(s.service, s.log)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Check-in
		r.Post("/recognize", checkinHandler.Recognize)
		r.Post("/detect", checkinHandler.Detect)

		// Identities
		r.Get("/identities", identitiesHandler.List)
		r.Post("/identities", identitiesHandler.Create)
		r.Get("/identities/{id}", identitiesHandler.Get)
		r.Put("/identities/{id}", identitiesHandler.Update)
		r.Delete("/identities/{id}", identitiesHandler.Delete)
		r.Get("/identities/{id}/attendance", identitiesHandler.Attendance)
		r.Get("/identities/{id}/lookalikes", identitiesHandler.Lookalikes)
	})

	// Check-in page
	s.router.Get("/*", s.serveStatic)
}

var contentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript; charset=utf-8",
	".json": "application/json",
	".svg":  "image/svg+xml",
	".png":  "image/png",
	".ico":  "image/x-icon",
}

// serveStatic serves the embedded check-in page, falling back to index.html.
func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) {
	fs := static.GetFileSystem()
	p := r.URL.Path
	if p == "/" {
		p = "/index.html"
	}

	f, err := fs.Open(p)
	if err != nil {
		if strings.HasPrefix(p, "/assets/") {
			http.NotFound(w, r)
			return
		}
		p = "/index.html"
		if f, err = fs.Open(p); err != nil {
			http.NotFound(w, r)
			return
		}
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil || stat.IsDir() {
		http.NotFound(w, r)
		return
	}

	contentType, ok := contentTypes[path.Ext(p)]
	if !ok {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if strings.HasPrefix(p, "/assets/") {
		w.Header().Set("Cache-Control", "public, max-age=3600")
	}
	w.WriteHeader(http.StatusOK)
	io.Copy(w, f)
}
