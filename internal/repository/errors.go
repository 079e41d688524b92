package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"fleettrack/pkg/apperror"
)

// classifyWriteErr turns a raw pgx error into an *apperror.Error, marking
// constraint violations that will never succeed on retry as
// apperror.CodeFatalStore (the pipeline's commitWithRetry wraps those in
// backoff.Permanent) and everything else — connection resets, deadlocks,
// statement timeouts — as apperror.CodeRetryableStore.
func classifyWriteErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503", "23514", "22P02", "23502": // fk_violation, check_violation, invalid_text_rep, not_null_violation
			return apperror.Wrap(err, apperror.CodeFatalStore, "store rejected write: "+pgErr.Message)
		}
	}
	return apperror.Wrap(err, apperror.CodeRetryableStore, "store write failed")
}
