// Package cli implements the command-line interface for the specrun tool.
//
// # Overview
//
// specrun evaluates RPM-style packaging recipes: it parses them, resolves
// their %if conditionals against a build context, lints them under every
// context, runs their lifecycle stages, and publishes the resulting
// packages to OCI registries.
//
// # Commands
//
// parse - Print the outline of a recipe:
//
//	specrun parse [--format yaml|json|table] [--output FILE] FILE
//
// fmt - Print a recipe in canonical form:
//
//	specrun fmt [--write] [--check] FILE
//
// resolve - Evaluate a recipe against a build context:
//
//	specrun resolve --distro suse --distro-version 1500 --with docs FILE
//
// lint - Check every conditional under every context:
//
//	specrun lint [--distros fedora,rhel] [--fail-on-error] FILE
//
// matrix - List the build contexts a recipe distinguishes, or emit a CI
// workflow that builds each of them:
//
//	specrun matrix [--arches x86_64,aarch64] [--provider github] FILE
//
// build - Run the prepare, build, install, check and package stages:
//
//	specrun build [--workdir DIR] [--until STAGE] [--nocheck] [--dry-run] FILE
//
// publish - Push a built package to an OCI registry:
//
//	specrun publish [--package NAME] [oci://REGISTRY/REPOSITORY[:TAG]]
//
// serve - Serve the recipe API:
//
//	specrun serve [--port 8080]
//
// # Build Context
//
// The context flags shared by resolve and build select the conditional
// branches:
//
//	--distro          distro profile, other, or auto for the host os-release
//	--distro-version  value of the distro version macro
//	--arch            target architecture
//	--with/--without  bcond features
//	--define, -D      macro definitions (name=value)
//
// # Configuration
//
// A YAML file passed with --config supplies defaults for the context,
// directory, format and publish settings. Flags and SPECRUN_* environment
// variables override the file.
//
// # Exit Codes
//
// The process exits 0 on success and 1 on error. When a build stage fails
// the process exits with the status of the failing command.
//
// # Metrics
//
// --metrics-file writes the Prometheus metrics of the run (stage durations,
// stage failures, publish retries) in text format when the command exits.
package cli
