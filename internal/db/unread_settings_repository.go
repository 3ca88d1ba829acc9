package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tOgg1/fedistream/internal/models"
)

// ErrSettingsNotFound is returned when an account has no stored settings.
var ErrSettingsNotFound = errors.New("unread settings not found")

// UnreadSettingsRepository stores the per-account streaming toggles.
type UnreadSettingsRepository struct {
	db *DB
}

// NewUnreadSettingsRepository creates a new UnreadSettingsRepository.
func NewUnreadSettingsRepository(db *DB) *UnreadSettingsRepository {
	return &UnreadSettingsRepository{db: db}
}

// Get returns the settings for accountID.
func (r *UnreadSettingsRepository) Get(ctx context.Context, accountID string) (models.UnreadSettings, error) {
	var direct, local, public bool
	err := r.db.QueryRowContext(ctx, `
		SELECT direct, local, public FROM unread_settings WHERE account_id = ?
	`, accountID).Scan(&direct, &local, &public)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.UnreadSettings{}, ErrSettingsNotFound
		}
		return models.UnreadSettings{}, fmt.Errorf("failed to query unread settings: %w", err)
	}
	return models.UnreadSettings{Direct: direct, Local: local, Public: public}, nil
}

// Upsert stores settings for accountID, replacing what was there.
func (r *UnreadSettingsRepository) Upsert(ctx context.Context, accountID string, settings models.UnreadSettings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO unread_settings (account_id, direct, local, public, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			direct = excluded.direct,
			local = excluded.local,
			public = excluded.public,
			updated_at = excluded.updated_at
	`, accountID, settings.Direct, settings.Local, settings.Public, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		if isForeignKeyError(err) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("failed to store unread settings: %w", err)
	}
	return nil
}
