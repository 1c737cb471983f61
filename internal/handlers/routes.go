package handlers

import (
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Router wires every handler of m onto a chi router. static is served under /static/.
func (m Main) Router(static fs.FS) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(m.logRequests)
	r.Use(chimiddleware.Recoverer)

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	r.Get("/", m.HandleHome)
	r.Get("/sse", m.HandleSSE)

	r.Route("/chats", func(r chi.Router) {
		r.Post("/", m.HandleChats)
		r.Post("/stop", m.HandleStop)
		r.Post("/reset", m.HandleReset)
	})
	r.Post("/modes", m.HandleMode)
	r.Get("/messages/{index}/text", m.HandleMessageText)
	r.Post("/images", m.HandleImages)
	r.Route("/archive", func(r chi.Router) {
		r.Get("/", m.HandleArchive)
		r.Get("/{id}", m.HandleTranscript)
	})

	return r
}

func (m Main) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		m.logger.Debug("Request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("took", time.Since(start)),
			slog.String("requestID", chimiddleware.GetReqID(r.Context())))
	})
}
