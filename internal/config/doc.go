// Package config defines the runtime configuration: datastore connection,
// lock protocol timings, copy guard settings, management-tool invocation, and
// the desired state the reconciler converges toward.
//
// Configuration is loaded in three layers. Defaults come first, a YAML file
// overrides them, and SITEINIT_* environment variables override the file.
// Secrets are environment-only: the admin password has no YAML field.
package config
