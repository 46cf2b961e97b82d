// Package checkpoint is an optional archive for StateEvents the core has
// given up on (spec section 7, EXPIRED), so a host can audit or replay them
// later. It is never imported by pkg/cep: the core matching algorithm has
// no notion of persistence, only of dropping an expired pending instance.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"cepcore/pkg/cep"
)

// Store archives EXPIRED StateEvents to Postgres using the same pooled
// connection idiom go-crablet's eventStore uses.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore verifies connectivity and returns a Store bound to pool.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("checkpoint.NewStore: unable to connect to database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// EnsureSchema creates the archive table if it does not already exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS cep_expired_checkpoints (
			id              BIGINT NOT NULL,
			correlation_id  UUID NOT NULL,
			event_type      SMALLINT NOT NULL,
			expired_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			anchor_ts       BIGINT NOT NULL,
			payload         JSONB NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("checkpoint.EnsureSchema: %w", err)
	}
	return nil
}

// checkpointRow is the JSON shape persisted to the payload column: a
// flattened view of a StateEvent, since StreamEvent chains are not
// self-describing outside the matching algorithm's own invariants.
type checkpointRow struct {
	ID         uint64          `json:"id"`
	Timestamp  int64           `json:"timestamp"`
	OutputData []cep.AttributeValue `json:"output_data,omitempty"`
	Positions  [][]cep.AttributeValue `json:"positions"`
}

func flatten(se *cep.StateEvent) checkpointRow {
	row := checkpointRow{ID: se.ID, Timestamp: se.Timestamp, OutputData: se.OutputData}
	for pos := 0; pos < len(se.StreamEvents); pos++ {
		var chainData [][]cep.AttributeValue
		for _, sev := range se.GetEventChain(pos) {
			chainData = append(chainData, sev.BeforeWindowData)
		}
		var flatPos []cep.AttributeValue
		for _, d := range chainData {
			flatPos = append(flatPos, d...)
		}
		row.Positions = append(row.Positions, flatPos)
	}
	return row
}

// Archive persists one expired StateEvent. anchor is the timestamp that
// triggered expiry (spec section 4.1 expire_events).
func (s *Store) Archive(ctx context.Context, se *cep.StateEvent, anchor int64) error {
	payload, err := json.Marshal(flatten(se))
	if err != nil {
		return fmt.Errorf("checkpoint.Archive: marshal: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO cep_expired_checkpoints (id, correlation_id, event_type, anchor_ts, payload)
		VALUES ($1, $2, $3, $4, $5)`,
		se.ID, se.CorrelationID, int(se.EventType), anchor, payload)
	if err != nil {
		return fmt.Errorf("checkpoint.Archive: insert: %w", err)
	}
	return nil
}

// ArchiveBatch archives every expired StateEvent produced by one
// ExpireEvents call.
func (s *Store) ArchiveBatch(ctx context.Context, expired []*cep.StateEvent, anchor int64) error {
	for _, se := range expired {
		if err := s.Archive(ctx, se, anchor); err != nil {
			return err
		}
	}
	return nil
}
