package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/NVIDIA/specrun/pkg/defaults"
	"github.com/NVIDIA/specrun/pkg/server"
)

const name = "specrun-api"

// Options configures Serve.
type Options struct {
	// Version is reported by the root route.
	Version string
	// Address and Port override the server defaults when set.
	Address string
	Port    int
	// ImplicitDefault is the resolve default for requests that omit it.
	ImplicitDefault bool
}

// Routes returns the API routes for h. Handlers give up after
// defaults.ResolveHandlerTimeout.
func Routes(h *Handler) map[string]http.HandlerFunc {
	limit := func(fn http.HandlerFunc) http.HandlerFunc {
		return http.TimeoutHandler(fn, defaults.ResolveHandlerTimeout, `{"code":"TIMEOUT","message":"request timed out"}`).ServeHTTP
	}
	return map[string]http.HandlerFunc{
		"/v1/parse":   limit(h.HandleParse),
		"/v1/fmt":     limit(h.HandleFormat),
		"/v1/resolve": limit(h.HandleResolve),
		"/v1/lint":    limit(h.HandleLint),
	}
}

// NewServer builds the API server without starting it.
func NewServer(opts Options) *server.Server {
	cfg := server.NewConfig()
	cfg.Name = name
	cfg.Version = opts.Version
	if opts.Address != "" {
		cfg.Address = opts.Address
	}
	if opts.Port > 0 {
		cfg.Port = opts.Port
	}

	h := &Handler{ImplicitDefault: opts.ImplicitDefault}
	return server.New(
		server.WithConfig(cfg),
		server.WithHandler(Routes(h)),
	)
}

// Serve runs the API server until ctx is cancelled or a termination
// signal arrives.
func Serve(ctx context.Context, opts Options) error {
	slog.Info("starting", "name", name, "version", opts.Version)

	if err := NewServer(opts).Run(ctx); err != nil {
		slog.Error("server exited with error", "error", err)
		return err
	}
	return nil
}
