package reconciler

import (
	"fmt"
	"io"
	"strings"

	"siteinit/internal/pkgmgr"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Plan is the full set of operations one reconciliation pass intends to
// perform. It is assembled in a single build pass and never mutated
// afterward; execution reads it, it does not grow it.
type Plan struct {
	Kinds    []KindPlan
	Sites    SitePlan
	Warnings []string
}

// KindPlan holds the operations for one extension kind. ActiveCount is the
// number of items observed active at build time; the executor tracks it
// across deletions so a pruning pass can never zero the kind.
type KindPlan struct {
	Kind        pkgmgr.Kind
	Installs    []InstallGroup
	Activations []ActivationChange
	AutoUpdate  *AutoUpdateReplace
	Deletions   []Deletion
	ActiveCount int
}

// InstallGroup is one batch install call: items of the same source grouped
// together. Versioned installs always form single-item groups because the
// version pin applies to the whole call.
type InstallGroup struct {
	Source  Source
	Specs   []string
	Names   []string
	Version string
}

// ActivationChange is one (de)activation call.
type ActivationChange struct {
	Name        string
	Deactivate  bool
	NetworkWide bool
	SiteURL     string
}

// AutoUpdateReplace is the authoritative write of one kind's auto-update
// list: the stored value is replaced wholesale, never merged, because the
// desired configuration is the single source of truth.
type AutoUpdateReplace struct {
	OptionKey string
	Names     []string
}

// Deletion is one pruning removal. Active marks an item observed active at
// build time; deleting the last remaining active item of a kind is only
// allowed after a fallback from the keep set has been activated successfully.
type Deletion struct {
	Name      string
	Active    bool
	Fallbacks []string
}

// SiteOp says how one desired sub-site resolves against actual state.
type SiteOp string

const (
	// SiteOpMigrate repoints a renamed site's mapping entry and path.
	SiteOpMigrate SiteOp = "migrate"
	// SiteOpAdopt binds a pre-mapping site found by its live slug.
	SiteOpAdopt SiteOp = "adopt"
	// SiteOpCreate creates a site that resolved nowhere.
	SiteOpCreate SiteOp = "create"
)

// SiteAction is one sub-site operation.
type SiteAction struct {
	Op           SiteOp
	Name         string
	PreviousName string
	ID           int64
	Slug         string
	Title        string
}

// SitePlan holds the sub-site operations and the mapping entries to prune.
type SitePlan struct {
	Actions      []SiteAction
	PruneEntries []string
}

// Empty reports whether executing the plan would perform no operation.
func (p *Plan) Empty() bool {
	for _, kp := range p.Kinds {
		if len(kp.Installs) > 0 || len(kp.Activations) > 0 || kp.AutoUpdate != nil || len(kp.Deletions) > 0 {
			return false
		}
	}
	return len(p.Sites.Actions) == 0 && len(p.Sites.PruneEntries) == 0
}

// Render writes a human-readable summary of the plan, used by the dry-run
// command.
func (p *Plan) Render(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Kind", "Operation", "Items"})

	for _, kp := range p.Kinds {
		for _, g := range kp.Installs {
			op := fmt.Sprintf("install (%s)", g.Source)
			if g.Version != "" {
				op += " @" + g.Version
			}
			t.AppendRow(table.Row{kp.Kind, op, strings.Join(g.Names, ", ")})
		}
		for _, a := range kp.Activations {
			op := "activate"
			if a.Deactivate {
				op = "deactivate"
			}
			if a.NetworkWide {
				op += " (network)"
			} else if a.SiteURL != "" {
				op += " (" + a.SiteURL + ")"
			}
			t.AppendRow(table.Row{kp.Kind, op, a.Name})
		}
		if kp.AutoUpdate != nil {
			t.AppendRow(table.Row{kp.Kind, "auto-update (replace)", strings.Join(kp.AutoUpdate.Names, ", ")})
		}
		for _, d := range kp.Deletions {
			op := "delete"
			if d.Active {
				op = "delete (active, fallback guarded)"
			}
			t.AppendRow(table.Row{kp.Kind, op, d.Name})
		}
	}
	for _, a := range p.Sites.Actions {
		switch a.Op {
		case SiteOpMigrate:
			t.AppendRow(table.Row{"site", "migrate", fmt.Sprintf("%s -> %s (id %d)", a.PreviousName, a.Name, a.ID)})
		case SiteOpAdopt:
			t.AppendRow(table.Row{"site", "adopt", fmt.Sprintf("%s (id %d)", a.Name, a.ID)})
		case SiteOpCreate:
			t.AppendRow(table.Row{"site", "create", a.Name})
		}
	}
	for _, name := range p.Sites.PruneEntries {
		t.AppendRow(table.Row{"site", "prune mapping entry", name})
	}

	if t.Length() == 0 {
		fmt.Fprintln(w, "Nothing to do; actual state matches desired state.")
	} else {
		t.Render()
	}
	for _, warning := range p.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}
