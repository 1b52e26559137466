// Package reconciler converges the installed and activated extensions of a
// site, and its sub-sites, toward a declared desired state.
//
// Reconciliation is split into two phases. The Builder reads the current
// state and produces an immutable Plan: what to install, which activations to
// change, which auto-update lists to replace, what to delete, and how each
// desired sub-site resolves. The Executor then applies a Plan, logging and
// counting per-item failures without aborting the run. A Plan can also be
// rendered without applying it, which is what the dry-run command does.
//
// Desired identifiers are classified before planning: plain registry names
// batch into one install call, pinned versions and download URLs install
// individually, and anything carrying path traversal or shell metacharacters
// is dropped from the plan with a warning.
package reconciler
