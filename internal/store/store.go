package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"siteinit/internal/config"
	"siteinit/pkg/logging"

	"github.com/go-sql-driver/mysql"
)

const storeSubsystem = "Store"

// ErrNotFound is returned when a requested option row does not exist.
var ErrNotFound = errors.New("not found")

// Table names cannot be bound as query parameters, so the prefix is
// validated once at open time instead.
var validPrefix = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Store wraps the shared relational datastore. All queries are parameterized;
// externally supplied values never reach query text.
type Store struct {
	db     *sql.DB
	prefix string
}

// Open connects to the datastore described by cfg. It does not verify
// reachability; call WaitReady before first use.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	if !validPrefix.MatchString(cfg.TablePrefix) {
		return nil, fmt.Errorf("invalid table prefix %q", cfg.TablePrefix)
	}

	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.DBName = cfg.Name
	mc.ParseTime = true

	db, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("opening datastore: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Store{db: db, prefix: cfg.TablePrefix}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// WaitReady polls the datastore until it answers a ping. The wait is
// unbounded on purpose: an unreachable datastore at startup is a
// precondition not yet met, not a failure. Cancellation comes from ctx.
func (s *Store) WaitReady(ctx context.Context) error {
	const interval = 3 * time.Second
	attempt := 0
	for {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, interval)
		err := s.db.PingContext(pingCtx)
		cancel()
		if err == nil {
			logging.Info(storeSubsystem, "Datastore is reachable (attempt %d)", attempt)
			return nil
		}
		logging.Info(storeSubsystem, "Datastore not ready (attempt %d): %v", attempt, err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for datastore: %w", ctx.Err())
		case <-time.After(interval):
		}
	}
}

func (s *Store) table(name string) string {
	return s.prefix + name
}

// casRow is the shared compare-and-swap over one (name, value) row.
// expect == "" means insert-if-absent. The read runs under FOR UPDATE so two
// writers evaluating the same predicate serialize instead of both believing
// they won.
func (s *Store) casRow(ctx context.Context, table, nameCol, valCol, name, expect, next string) (swapped bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning cas transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logging.Warn(storeSubsystem, "Rollback failed: %v", rbErr)
			}
		}
	}()

	var current string
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? FOR UPDATE", valCol, table, nameCol)
	scanErr := tx.QueryRowContext(ctx, query, name).Scan(&current)
	switch {
	case scanErr == sql.ErrNoRows:
		if expect != "" {
			return false, tx.Rollback()
		}
		insert := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?)", table, nameCol, valCol)
		if _, err = tx.ExecContext(ctx, insert, name, next); err != nil {
			if isDuplicateKey(err) {
				// A concurrent inserter beat us to the row.
				return false, tx.Rollback()
			}
			return false, fmt.Errorf("inserting row %q: %w", name, err)
		}
	case scanErr != nil:
		err = fmt.Errorf("reading row %q: %w", name, scanErr)
		return false, err
	default:
		if current != expect {
			return false, tx.Rollback()
		}
		update := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", table, valCol, nameCol)
		if _, err = tx.ExecContext(ctx, update, next, name); err != nil {
			return false, fmt.Errorf("updating row %q: %w", name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("committing cas for %q: %w", name, err)
	}
	return true, nil
}

// deleteRowIfPrefix deletes one row only while its value still starts with
// prefix, so a lock already reassigned to another holder is never deleted.
func (s *Store) deleteRowIfPrefix(ctx context.Context, table, nameCol, valCol, name, prefix string) (deleted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logging.Warn(storeSubsystem, "Rollback failed: %v", rbErr)
			}
		}
	}()

	var current string
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? FOR UPDATE", valCol, table, nameCol)
	scanErr := tx.QueryRowContext(ctx, query, name).Scan(&current)
	if scanErr == sql.ErrNoRows {
		return false, tx.Rollback()
	}
	if scanErr != nil {
		err = fmt.Errorf("reading row %q: %w", name, scanErr)
		return false, err
	}
	if len(current) < len(prefix) || current[:len(prefix)] != prefix {
		return false, tx.Rollback()
	}

	del := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, nameCol)
	if _, err = tx.ExecContext(ctx, del, name); err != nil {
		return false, fmt.Errorf("deleting row %q: %w", name, err)
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("committing delete for %q: %w", name, err)
	}
	return true, nil
}

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

func (s *Store) getRow(ctx context.Context, table, nameCol, valCol, name string) (string, error) {
	var value string
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", valCol, table, nameCol)
	err := s.db.QueryRowContext(ctx, query, name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading row %q: %w", name, err)
	}
	return value, nil
}
