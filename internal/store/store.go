package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Opener dials a fresh database handle. It is used when the current pool
// can no longer reach the server.
type Opener func() (*gorm.DB, error)

// Store is the only gateway to users and transactions. Every operation runs
// on a pooled connection; an operation that fails because the connection
// dropped is retried exactly once after reconnecting.
type Store struct {
	mu   sync.RWMutex
	db   *gorm.DB
	open Opener
	log  zerolog.Logger
}

func New(db *gorm.DB, open Opener, log zerolog.Logger) *Store {
	return &Store{
		db:   db,
		open: open,
		log:  log.With().Str("component", "store").Logger(),
	}
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.WithContext(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.conn(ctx).DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// do runs fn and, on a connection-class failure, reconnects and runs it one
// more time. A second failure is returned as is.
func (s *Store) do(ctx context.Context, op string, fn func(db *gorm.DB) error) error {
	err := fn(s.conn(ctx))
	if err == nil || !isConnectionError(err) || ctx.Err() != nil {
		return err
	}

	s.log.Warn().Err(err).Str("op", op).Msg("database connection lost, reconnecting")
	if rerr := s.reconnect(ctx); rerr != nil {
		return fmt.Errorf("%s: reconnect failed: %w", op, errors.Join(err, rerr))
	}
	return fn(s.conn(ctx))
}

// transact runs fn inside one database transaction. The whole transaction
// is the unit of retry.
func (s *Store) transact(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	return s.do(ctx, op, func(db *gorm.DB) error {
		return db.Transaction(fn)
	})
}

func (s *Store) reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.db.DB()
	if err == nil && old.PingContext(ctx) == nil {
		// The pool already replaced the broken connection.
		return nil
	}
	if s.open == nil {
		return errors.New("no database opener configured")
	}

	fresh, err := s.open()
	if err != nil {
		return err
	}
	if old != nil {
		old.Close()
	}
	s.db = fresh
	s.log.Info().Msg("database connection re-established")
	return nil
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exception; 57P01-57P03 are server shutdown
		// and startup states.
		return strings.HasPrefix(pgErr.Code, "08") ||
			pgErr.Code == "57P01" || pgErr.Code == "57P02" || pgErr.Code == "57P03"
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return pgconn.SafeToRetry(err)
}
