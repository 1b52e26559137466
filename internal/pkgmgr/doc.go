// Package pkgmgr wraps the site's command-line management tool: core
// install state, extension install/activate/delete, and sub-site listing and
// creation. Read-only listings parse the tool's JSON output; mutations retry
// on transient failure.
package pkgmgr
