package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/NVIDIA/specrun/pkg/config"
	"github.com/NVIDIA/specrun/pkg/errors"
	"github.com/NVIDIA/specrun/pkg/recipe"
)

// defaultSourceName names request bodies in errors and outlines.
const defaultSourceName = "request.spec"

// ParseContextQuery reads the build context from query parameters. The
// result goes through the same validation as the config file.
func ParseContextQuery(r *http.Request) (*config.Config, error) {
	q := r.URL.Query()

	cfg := &config.Config{
		Distro:        strings.TrimSpace(q.Get("distro")),
		DistroVersion: strings.TrimSpace(q.Get("distroVersion")),
		Arch:          strings.TrimSpace(q.Get("arch")),
		With:          listParam(q, "with"),
		Without:       listParam(q, "without"),
	}

	if name, ver, ok := strings.Cut(cfg.Distro, "@"); ok {
		if cfg.DistroVersion != "" && cfg.DistroVersion != ver {
			return nil, errors.New(errors.ErrCodeInvalidRequest,
				fmt.Sprintf("distro version given twice: %q and %q", ver, cfg.DistroVersion))
		}
		cfg.Distro, cfg.DistroVersion = name, ver
	}

	for _, def := range q["define"] {
		name, value, ok := strings.Cut(def, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, errors.New(errors.ErrCodeInvalidRequest,
				fmt.Sprintf("invalid define %q, expected name=value", def))
		}
		if cfg.Defines == nil {
			cfg.Defines = map[string]string{}
		}
		cfg.Defines[name] = value
	}

	if v := q.Get("implicitDefault"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidRequest, "invalid implicitDefault", err)
		}
		cfg.ImplicitDefault = b
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildContext turns the query config into a resolution context.
func buildContext(cfg *config.Config) (*recipe.Context, error) {
	opts, err := cfg.ContextOptions()
	if err != nil {
		return nil, err
	}
	return recipe.NewContext(opts...), nil
}

// listParam collects a repeatable, comma separated parameter.
func listParam(q url.Values, key string) []string {
	var out []string
	for _, v := range q[key] {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

func sourceName(r *http.Request) string {
	if name := strings.TrimSpace(r.URL.Query().Get("name")); name != "" {
		return name
	}
	return defaultSourceName
}
