// Package sitemap tracks the durable name-to-ID mapping of sub-sites, stored
// as a single option value. The mapping survives sub-site renames so a site's
// identity follows its declared name, not its current slug.
package sitemap

import (
	"context"
	"errors"
	"fmt"

	"siteinit/internal/store"
	"siteinit/pkg/codec"
	"siteinit/pkg/logging"
)

const (
	sitemapSubsystem = "SiteMapping"

	// OptionKey is the configuration-store key holding the serialized map.
	OptionKey = "siteinit_site_mapping"
)

// OptionStore is the slice of the configuration store the mapping needs.
type OptionStore interface {
	GetOption(ctx context.Context, key string) (string, error)
	SetOption(ctx context.Context, key, value string) error
}

// Store is the persistent site name -> numeric id map. It survives renames:
// entries are created on site creation, repointed on rename, and removed on
// prune. The whole map is one serialized value, read once per reconciliation
// pass and written back once at the end iff it changed.
type Store struct {
	opts  OptionStore
	codec codec.Codec

	entries map[string]int64
	dirty   bool
}

// Load reads the mapping from the configuration store. A missing value is an
// empty mapping, not an error.
func Load(ctx context.Context, opts OptionStore, c codec.Codec) (*Store, error) {
	s := &Store{opts: opts, codec: c, entries: map[string]int64{}}

	raw, err := opts.GetOption(ctx, OptionKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s, nil
		}
		return nil, fmt.Errorf("loading site mapping: %w", err)
	}
	entries, err := c.DecodeStringMap([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("loading site mapping: %w", err)
	}
	s.entries = entries
	return s, nil
}

// Get returns the id bound to name.
func (s *Store) Get(name string) (int64, bool) {
	id, ok := s.entries[name]
	return id, ok
}

// Set binds name to id. The mapping is injective: binding a second active
// name to an id already bound elsewhere is refused.
func (s *Store) Set(name string, id int64) error {
	if existing, ok := s.entries[name]; ok && existing == id {
		return nil
	}
	for other, otherID := range s.entries {
		if otherID == id && other != name {
			return fmt.Errorf("site id %d is already bound to %q", id, other)
		}
	}
	s.entries[name] = id
	s.dirty = true
	return nil
}

// Remove drops the binding for name. Removing an absent name is a no-op.
func (s *Store) Remove(name string) {
	if _, ok := s.entries[name]; !ok {
		return
	}
	delete(s.entries, name)
	s.dirty = true
}

// Migrate rebinds oldName's id to newName and drops oldName. It reports
// whether a binding existed to migrate.
func (s *Store) Migrate(oldName, newName string) bool {
	id, ok := s.entries[oldName]
	if !ok {
		return false
	}
	delete(s.entries, oldName)
	s.entries[newName] = id
	s.dirty = true
	logging.Info(sitemapSubsystem, "Migrated site mapping %q -> %q (id %d)", oldName, newName, id)
	return true
}

// Len returns the number of bindings.
func (s *Store) Len() int { return len(s.entries) }

// Entries returns a copy of the current bindings.
func (s *Store) Entries() map[string]int64 {
	out := make(map[string]int64, len(s.entries))
	for name, id := range s.entries {
		out[name] = id
	}
	return out
}

// Flush writes the mapping back iff it was mutated since Load.
func (s *Store) Flush(ctx context.Context) error {
	if !s.dirty {
		return nil
	}
	encoded, err := s.codec.EncodeStringMap(s.entries)
	if err != nil {
		return fmt.Errorf("flushing site mapping: %w", err)
	}
	if err := s.opts.SetOption(ctx, OptionKey, string(encoded)); err != nil {
		return fmt.Errorf("flushing site mapping: %w", err)
	}
	s.dirty = false
	logging.Debug(sitemapSubsystem, "Wrote site mapping (%d entries)", len(s.entries))
	return nil
}
