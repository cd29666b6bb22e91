package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/shelf/pkg/httputil"
	"github.com/platinummonkey/shelf/pkg/observability"
	"github.com/platinummonkey/shelf/pkg/registry"
)

// ServerOptions configures the HTTP surface
type ServerOptions struct {
	Service        *registry.Service
	Logger         *observability.Logger
	Metrics        *observability.Metrics
	LogoDir        string
	MaxUploadBytes int64
}

// NewRouter builds the registry's HTTP router with the standard middleware
// chain applied to every route.
func NewRouter(opts ServerOptions) http.Handler {
	handlers := NewHandlers(opts.Service, opts.Logger, opts.LogoDir)

	r := mux.NewRouter()
	r.HandleFunc("/uploadPlugin", handlers.UploadPlugin).Methods(http.MethodPost)
	r.HandleFunc("/commitPlugin", handlers.CommitPlugin).Methods(http.MethodPost)
	r.HandleFunc("/deletePlugin", handlers.DeletePlugin).Methods(http.MethodPost)
	r.HandleFunc("/getPlugins", handlers.GetPlugins).Methods(http.MethodPost)
	r.HandleFunc("/image", handlers.Image).Methods(http.MethodGet)

	r.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteMessage(w, "ok")
	}).Methods(http.MethodGet)

	chain := httputil.Chain(
		httputil.RequestIDMiddleware(opts.Logger),
		httputil.LoggingMiddleware(opts.Logger),
		httputil.MetricsMiddleware(opts.Metrics),
		httputil.RecoveryMiddleware(opts.Logger),
		httputil.MaxBytesMiddleware(opts.MaxUploadBytes),
	)

	return chain(r)
}
