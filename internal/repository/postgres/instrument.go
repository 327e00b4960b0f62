package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/honeynil/RentalSettlementService/internal/infrastructure/observability"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

// instrument opens a span for a repository method and returns the func that
// records its outcome in the span and in the repository metrics.
func instrument(ctx context.Context, tracerName, method string) (context.Context, func(*error)) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, method)
	start := time.Now()
	return ctx, func(errp *error) {
		status := "success"
		if errp != nil && *errp != nil {
			status = "error"
			span.RecordError(*errp)
			span.SetStatus(codes.Error, (*errp).Error())
		}
		observability.RepositoryCalls.WithLabelValues(method, status).Inc()
		observability.RepositoryDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		span.End()
	}
}

const (
	uniqueViolation           = "23505"
	invalidTextRepresentation = "22P02"
)

// pqCode returns the SQLSTATE of a Postgres error, or "" for anything else.
func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

// lookupMissed reports whether a single-row lookup found nothing. An id that
// does not parse as a UUID cannot match a row either.
func lookupMissed(err error) bool {
	return stderrors.Is(err, sql.ErrNoRows) || pqCode(err) == invalidTextRepresentation
}

// execOne runs an update that must touch exactly one row; zero rows yields missing.
func execOne(ctx context.Context, q sqlx.ExecerContext, missing error, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return missing
	}
	return nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
