package api

import (
	"bytes"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/NVIDIA/specrun/pkg/errors"
	"github.com/NVIDIA/specrun/pkg/recipe"
	"github.com/NVIDIA/specrun/pkg/serializer"
	"github.com/NVIDIA/specrun/pkg/server"
	"github.com/NVIDIA/specrun/pkg/specfile"
)

// Handler serves the recipe endpoints.
type Handler struct {
	// ImplicitDefault applies to resolve requests that do not set it.
	ImplicitDefault bool
	// Domains are added to every lint request.
	Domains map[recipe.Family][]string
}

// HandleParse returns the outline of the posted recipe.
func (h *Handler) HandleParse(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.parseBody(w, r)
	if !ok {
		return
	}
	serializer.RespondJSON(w, http.StatusOK, doc.Outline())
}

// HandleFormat returns the posted recipe in canonical form.
func (h *Handler) HandleFormat(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.parseBody(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := specfile.Format(&buf, doc); err != nil {
		server.WriteErrorFromErr(w, r, err, "Failed to format recipe", nil)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Warn("response write failed", "error", err)
	}
}

// HandleResolve resolves the posted recipe for the context in the query.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	cfg, err := ParseContextQuery(r)
	if err != nil {
		server.WriteErrorFromErr(w, r, err, "Invalid query", nil)
		return
	}

	doc, ok := h.parseBody(w, r)
	if !ok {
		return
	}

	ctx, err := buildContext(cfg)
	if err != nil {
		server.WriteErrorFromErr(w, r, err, "Invalid context", nil)
		return
	}

	var opts []recipe.ResolveOption
	if cfg.ImplicitDefault || (h.ImplicitDefault && !r.URL.Query().Has("implicitDefault")) {
		opts = append(opts, recipe.WithImplicitDefault())
	}

	rec, err := recipe.Resolve(doc, ctx, opts...)
	if err != nil {
		slog.Debug("resolve failed", "source", doc.Source, "context", ctx.String(), "error", err)
		server.WriteErrorFromErr(w, r, err, "Failed to resolve recipe", map[string]any{"context": ctx.String()})
		return
	}

	serializer.RespondJSON(w, http.StatusOK, rec)
}

// HandleLint checks every conditional of the posted recipe.
func (h *Handler) HandleLint(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	failOnError := false
	if v := q.Get("failOnError"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			server.WriteErrorFromErr(w, r,
				errors.Wrap(errors.ErrCodeInvalidRequest, "invalid failOnError", err), "Invalid query", nil)
			return
		}
		failOnError = b
	}

	doc, ok := h.parseBody(w, r)
	if !ok {
		return
	}

	domains := map[recipe.Family][]string{}
	for f, profiles := range h.Domains {
		domains[f] = append(domains[f], profiles...)
	}
	for _, d := range listParam(q, "distros") {
		profile, err := recipe.ParseDistroProfile(d)
		if err != nil {
			server.WriteErrorFromErr(w, r, errors.Wrap(errors.ErrCodeInvalidRequest, "invalid distros", err), "Invalid query", nil)
			return
		}
		domains[recipe.FamilyDistro] = append(domains[recipe.FamilyDistro], string(profile))
	}

	rep := recipe.Check(doc, recipe.CheckOptions{Domains: domains})

	status := http.StatusOK
	if failOnError && rep.HasErrors() {
		status = http.StatusUnprocessableEntity
	}
	serializer.RespondJSON(w, status, rep)
}

// parseBody reads and parses the request body, writing the error response
// itself when it fails.
func (h *Handler) parseBody(w http.ResponseWriter, r *http.Request) (*recipe.Document, bool) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		server.WriteError(w, r, http.StatusMethodNotAllowed, errors.ErrCodeMethodNotAllowed,
			"Method not allowed", false, map[string]any{"allowed": http.MethodPost})
		return nil, false
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			server.WriteError(w, r, http.StatusRequestEntityTooLarge, errors.ErrCodeInvalidRequest,
				"Request body too large", false, map[string]any{"limit": tooLarge.Limit})
			return nil, false
		}
		server.WriteErrorFromErr(w, r, errors.Wrap(errors.ErrCodeInvalidRequest, "failed to read body", err),
			"Failed to read body", nil)
		return nil, false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		server.WriteError(w, r, http.StatusBadRequest, errors.ErrCodeInvalidRequest,
			"Request body must contain a recipe", false, nil)
		return nil, false
	}

	doc, err := specfile.Parse(bytes.NewReader(body), sourceName(r))
	if err != nil {
		server.WriteErrorFromErr(w, r, err, "Failed to parse recipe", nil)
		return nil, false
	}
	return doc, true
}
