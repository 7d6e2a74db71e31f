package observability

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATEs the users and refresh_tokens tables can raise.
var pgCodeLabels = map[string]string{
	"23505": "unique_violation",      // users.email
	"23503": "foreign_key_violation", // refresh_tokens.user_id
	"23514": "check_violation",
	"22001": "value_too_long",
	"40001": "serialization_failure",
	"40P01": "deadlock",
	"53300": "too_many_connections",
	"57014": "query_canceled",
}

// ObserveDB times fn under the logical op name (users.create,
// sessions.rotate, ...). A pgx.ErrNoRows lookup miss counts as ok.
func (p *Prom) ObserveDB(op string, fn func() error) error {
	start := time.Now()
	err := fn()

	status, class := dbOutcome(err)
	if class != "" {
		p.DbErrorsTotal.WithLabelValues(op, class).Inc()
	}

	p.DbQueryDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	return err
}

// dbOutcome returns the duration status label and, for failures, the error
// class label.
func dbOutcome(err error) (status, class string) {
	switch {
	case err == nil, errors.Is(err, pgx.ErrNoRows):
		return "ok", ""
	case errors.Is(err, context.Canceled):
		// the caller went away
		return "canceled", "canceled"
	case errors.Is(err, context.DeadlineExceeded), pgconn.Timeout(err):
		return "error", "timeout"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if label, ok := pgCodeLabels[pgErr.Code]; ok {
			return "error", label
		}
		return "error", "pg_" + pgErr.Code
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || strings.Contains(strings.ToLower(err.Error()), "connection") {
		return "error", "connection"
	}

	return "error", "unknown"
}
