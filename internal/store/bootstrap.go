package store

import (
	"context"
	"fmt"
)

// bootstrapTable backs the pre-schema bootstrap lock. It is the only table
// this job creates itself: it must exist before first-time setup has created
// the application schema.
const bootstrapTable = "init_locks"

// BootstrapLocks exposes the dedicated lock table usable before the
// application schema exists.
type BootstrapLocks struct {
	s *Store
}

// BootstrapLocks returns the pre-schema lock row store.
func (s *Store) BootstrapLocks() *BootstrapLocks {
	return &BootstrapLocks{s: s}
}

// EnsureTable creates the lock table if it is missing. Safe to call from
// every replica concurrently.
func (b *BootstrapLocks) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s ("+
			"lock_name VARCHAR(191) NOT NULL PRIMARY KEY, "+
			"lock_value TEXT NOT NULL"+
			") ENGINE=InnoDB",
		b.s.table(bootstrapTable))
	if _, err := b.s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensuring bootstrap lock table: %w", err)
	}
	return nil
}

// Get implements the lock row store over the bootstrap table.
func (b *BootstrapLocks) Get(ctx context.Context, name string) (string, error) {
	return b.s.getRow(ctx, b.s.table(bootstrapTable), "lock_name", "lock_value", name)
}

// CompareAndSwap implements the lock row store over the bootstrap table.
func (b *BootstrapLocks) CompareAndSwap(ctx context.Context, name, expect, next string) (bool, error) {
	return b.s.casRow(ctx, b.s.table(bootstrapTable), "lock_name", "lock_value", name, expect, next)
}

// DeleteIfPrefix implements the lock row store over the bootstrap table.
func (b *BootstrapLocks) DeleteIfPrefix(ctx context.Context, name, prefix string) (bool, error) {
	return b.s.deleteRowIfPrefix(ctx, b.s.table(bootstrapTable), "lock_name", "lock_value", name, prefix)
}
