package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/liaosvcaf/explain-selection-with-ai/internal/provider"
)

type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore keeps the settings document as a single JSONB row.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Load(ctx context.Context) (provider.Settings, error) {
	query := `SELECT doc FROM settings WHERE id = 1`

	var doc []byte
	err := s.db.QueryRow(ctx, query).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return provider.DefaultSettings(), nil
		}
		return provider.Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}

	// Unmarshalling over the prefilled defaults leaves missing keys at their
	// default values.
	merged := provider.DefaultSettings()
	if err := json.Unmarshal(doc, &merged); err != nil {
		return provider.Settings{}, fmt.Errorf("failed to decode settings document: %w", err)
	}
	return merged, nil
}

func (s *PostgresStore) Save(ctx context.Context, set provider.Settings) error {
	doc, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to encode settings document: %w", err)
	}

	query := `
		INSERT INTO settings (id, doc, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()
	`
	if _, err := s.db.Exec(ctx, query, doc); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
