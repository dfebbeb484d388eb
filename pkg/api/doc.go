// Package api exposes recipe parsing, resolution and linting over HTTP.
//
// This package is a thin layer over pkg/server: it configures the server
// with the specrun routes and handlers. The API never runs lifecycle
// stages; use the CLI build command for that.
//
// # Endpoints
//
// Every endpoint takes the recipe text as the POST body. The optional name
// query parameter sets the source name used in error messages.
//
//	POST /v1/parse    -> recipe outline (tags, sections, conditionals, bconds)
//	POST /v1/fmt      -> canonical recipe text (text/plain)
//	POST /v1/resolve  -> effective recipe for one build context
//	POST /v1/lint     -> lint report
//
// Resolve reads the build context from the query string:
//
//	distro           distro profile, optionally with @version (suse@1500)
//	distroVersion    distro version when not given inline
//	arch             target architecture (x86_64, aarch64, ...)
//	with, without    bcond features, repeated or comma separated
//	define           name=value macro definitions, repeated
//	implicitDefault  true to treat a conditional without %else as empty
//
// Lint accepts distros (comma separated) to add profiles to the checked
// domain and failOnError=true to answer 422 when the report has errors.
//
// Example:
//
//	curl --data-binary @foo.spec "http://localhost:8080/v1/resolve?distro=suse@1500&arch=x86_64"
//
// # Errors
//
// Parse failures return 422 with code PARSE_ERROR and the line in details;
// resolution failures return 422 with UNRESOLVED_CONDITION or
// AMBIGUOUS_CONDITION. Bad query parameters return 400.
package api
