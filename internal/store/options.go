package store

import (
	"context"
	"database/sql"
	"fmt"
)

// optionsTable is the application's general configuration key/value table.
// It exists only after first-time setup has run.
const optionsTable = "options"

// Options exposes the configuration key/value table. It doubles as the row
// store for the post-schema configuration lock.
type Options struct {
	s *Store
}

// Options returns the key/value view over the configuration table.
func (s *Store) Options() *Options {
	return &Options{s: s}
}

// GetOption returns the value stored under key, or ErrNotFound.
func (o *Options) GetOption(ctx context.Context, key string) (string, error) {
	var value string
	query := fmt.Sprintf("SELECT option_value FROM %s WHERE option_name = ?", o.s.table(optionsTable))
	err := o.s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("option %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("reading option %q: %w", key, err)
	}
	return value, nil
}

// SetOption upserts the value stored under key. Values written by this job
// never need autoloading by the application.
func (o *Options) SetOption(ctx context.Context, key, value string) error {
	query := fmt.Sprintf(
		"INSERT INTO %s (option_name, option_value, autoload) VALUES (?, ?, 'no') "+
			"ON DUPLICATE KEY UPDATE option_value = VALUES(option_value)",
		o.s.table(optionsTable))
	if _, err := o.s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("writing option %q: %w", key, err)
	}
	return nil
}

// DeleteOption removes the row for key. Deleting an absent key is not an
// error.
func (o *Options) DeleteOption(ctx context.Context, key string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE option_name = ?", o.s.table(optionsTable))
	if _, err := o.s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("deleting option %q: %w", key, err)
	}
	return nil
}

// Get implements the lock row store over option rows. Absence reads as "".
func (o *Options) Get(ctx context.Context, name string) (string, error) {
	return o.s.getRow(ctx, o.s.table(optionsTable), "option_name", "option_value", name)
}

// CompareAndSwap implements the lock row store over option rows.
func (o *Options) CompareAndSwap(ctx context.Context, name, expect, next string) (bool, error) {
	return o.s.casRow(ctx, o.s.table(optionsTable), "option_name", "option_value", name, expect, next)
}

// DeleteIfPrefix implements the lock row store over option rows.
func (o *Options) DeleteIfPrefix(ctx context.Context, name, prefix string) (bool, error) {
	return o.s.deleteRowIfPrefix(ctx, o.s.table(optionsTable), "option_name", "option_value", name, prefix)
}
