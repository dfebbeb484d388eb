// Package oci publishes built packages to OCI-compliant registries.
//
// A package is published as an OCI 1.1 artifact: the files its manifest
// entry lists are staged from the build root into a temporary tree, packed
// as one reproducible tar+gzip layer and pushed with ORAS (OCI Registry As
// Storage). Registries that understand OCI artifacts (GHCR, ECR, Harbor,
// zot, distribution v3) store them next to container images.
//
// # Usage
//
//	ref, err := oci.ParseReference("oci://ghcr.io/nvidia/packages")
//	if err != nil {
//	    return err
//	}
//	res, err := oci.Push(ctx, oci.PushOptions{
//	    ManifestPath: ".specrun/OUTPUT/manifest.yaml",
//	    BuildRoot:    ".specrun/BUILDROOT",
//	    Package:      "foo",
//	    Reference:    ref,
//	})
//
// When the reference has no tag the package EVR is used, with characters
// that tags cannot carry (the epoch colon, "~", "^", "+") replaced by "_".
//
// # Staging
//
// Files are hard linked into the staging tree, falling back to a copy when
// the build root is on another filesystem. Every regular file is checked
// against the sha256 recorded in the manifest, so a build root modified
// after the package stage is refused.
//
// # Retries
//
// Registry responses 429 and 5xx and network errors are retried with
// exponential backoff (github.com/cenk/backoff); other failures are
// returned at once.
//
// # Authentication
//
// Credentials come from the Docker configuration (~/.docker/config.json)
// through the ORAS credentials package.
//
// # Artifact Type
//
// Artifacts carry the type "application/vnd.nvidia.specrun.package" and
// the standard image annotations: title (package name), version (EVR),
// licenses, description (summary) and created (manifest generation time).
package oci
