package convmemory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists ConversationState as a single JSON blob per
// conversation_id, in a jsonb column.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

type persistedState struct {
	Messages []Message `json:"messages"`
	Summary  *Summary  `json:"summary,omitempty"`
}

func (s *PostgresStore) Load(ctx context.Context, conversationID string) (*State, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM conversations WHERE conversation_id = $1`, conversationID,
	).Scan(&blob)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading conversation: %w", err)
	}

	var ps persistedState
	if err := json.Unmarshal(blob, &ps); err != nil {
		return nil, fmt.Errorf("decoding conversation state: %w", err)
	}
	return &State{ConversationID: conversationID, Messages: ps.Messages, Summary: ps.Summary}, nil
}

func (s *PostgresStore) Save(ctx context.Context, state *State) error {
	blob, err := json.Marshal(persistedState{Messages: state.Messages, Summary: state.Summary})
	if err != nil {
		return fmt.Errorf("encoding conversation state: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversations (conversation_id, state, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (conversation_id) DO UPDATE SET state = EXCLUDED.state, updated_at = NOW()
	`, state.ConversationID, blob)
	if err != nil {
		return fmt.Errorf("saving conversation: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
