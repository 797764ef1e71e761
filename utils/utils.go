package utils

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/UltimateTournament/backoff/v4"
	"github.com/danthegoodman1/recollect/gologger"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/segmentio/ksuid"
)

var logger = gologger.NewLogger()

func GetEnvOrDefault(env, defaultVal string) string {
	e := os.Getenv(env)
	if e == "" {
		return defaultVal
	} else {
		return e
	}
}

func GetEnvOrDefaultInt(env string, defaultVal int64) int64 {
	e := os.Getenv(env)
	if e == "" {
		return defaultVal
	} else {
		intVal, err := strconv.ParseInt(e, 10, 64)
		if err != nil {
			logger.Error().Msg(fmt.Sprintf("Failed to parse string to int '%s'", env))
			os.Exit(1)
		}

		return intVal
	}
}

// GenKSortedID generates a K-sortable ID with the given prefix, used for
// run IDs so that log lines and output artifacts sort by creation time.
func GenKSortedID(prefix string) string {
	return prefix + ksuid.New().String()
}

// GenRandomShortID is used for scratch table suffixes. The reduced
// character set avoids characters that are easy to mis-type.
func GenRandomShortID() string {
	return gonanoid.MustGenerate("abcdefghikmonpqrstuvwxyz0123456789", 8)
}

func Ptr[T any](s T) *T {
	return &s
}

func Deref[T any](ref *T, fallback T) T {
	if ref == nil {
		return fallback
	}
	return *ref
}

func ContainsString(s []string, str string) bool {
	for _, v := range s {
		if v == str {
			return true
		}
	}

	return false
}

// ReliableExec acquires a connection from the pool and runs f against it,
// retrying with exponential backoff until f succeeds, returns a permanent
// error, or the context dies.
func ReliableExec(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration, f func(ctx context.Context, conn *pgxpool.Conn) error) error {
	return backoff.Retry(func() error {
		execCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		conn, err := pool.Acquire(execCtx)
		if err != nil {
			return fmt.Errorf("error in pool.Acquire: %w", err)
		}
		defer conn.Release()
		err = f(execCtx, conn)
		if IsPermanentError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.NewExponentialBackOff(), ctx))
}

// ReliableExecInTx is ReliableExec wrapped in a transaction that commits
// when f returns nil and rolls back otherwise.
func ReliableExecInTx(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration, f func(ctx context.Context, tx pgx.Tx) error) error {
	return ReliableExec(ctx, pool, timeout, func(ctx context.Context, conn *pgxpool.Conn) error {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return fmt.Errorf("error in conn.Begin: %w", err)
		}
		defer tx.Rollback(ctx)
		if err := f(ctx, tx); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("error in tx.Commit: %w", err)
		}
		return nil
	})
}
