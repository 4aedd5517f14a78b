package shared

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrIdempotencyConflict marks a request id that was already settled.
var ErrIdempotencyConflict = errors.New("request already processed")

// IdempotencyStore remembers settled request ids so a replayed sale
// cannot book a second invoice. Ids are unique per scope ("billing").
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// CheckAndInsert claims requestID within scope. A second claim of the
// same id returns ErrIdempotencyConflict.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, requestID, scope string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if requestID == "" || scope == "" {
		return errors.New("idempotency request id and scope required")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (request_id, scope, created_at) VALUES ($1, $2, NOW())`, requestID, scope)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// Delete releases a claimed id after the guarded operation failed, so
// the caller may retry with the same request id.
func (s *IdempotencyStore) Delete(ctx context.Context, requestID string) error {
	if s == nil {
		return nil
	}
	if requestID == "" {
		return errors.New("idempotency request id required")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE request_id=$1`, requestID)
	return err
}
