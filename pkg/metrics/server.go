package metrics

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// Route is a handler served next to /metrics, such as a health probe.
type Route struct {
	Pattern string
	Handler http.HandlerFunc
}

// NewMux serves /metrics and routes. The index page links every path.
func NewMux(routes ...Route) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	paths := []string{"/metrics"}
	for _, r := range routes {
		mux.HandleFunc(r.Pattern, r.Handler)
		paths = append(paths, r.Pattern)
	}
	sort.Strings(paths)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><h1>Vehicle Catalog Ingestion</h1><ul>")
		for _, p := range paths {
			fmt.Fprintf(w, `<li><a href="%[1]s">%[1]s</a></li>`, html.EscapeString(p))
		}
		fmt.Fprint(w, "</ul></body></html>")
	})
	return mux
}

// StartServer listens on port in the background. The returned function
// shuts the server down gracefully.
func StartServer(port int, routes ...Route) (shutdown func(context.Context) error) {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewMux(routes...),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	go func() {
		slog.Info("metrics server listening", "addr", server.Addr, "routes", len(routes)+1)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
	return server.Shutdown
}
