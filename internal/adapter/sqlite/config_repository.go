package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/semmidev/backupkeeper/internal/domain"
)

type ConfigRepository struct {
	db *DB
}

func NewConfigRepository(db *DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

func (r *ConfigRepository) GetSystemConfig(ctx context.Context) (map[string]domain.SystemConfigValue, error) {
	rows, err := r.db.db.QueryContext(ctx, `SELECT key, value, type FROM system_config`)
	if err != nil {
		return nil, fmt.Errorf("query system config: %w", err)
	}
	defer rows.Close()

	values := make(map[string]domain.SystemConfigValue)
	for rows.Next() {
		var key string
		var v domain.SystemConfigValue
		if err := rows.Scan(&key, &v.Value, &v.Type); err != nil {
			return nil, fmt.Errorf("scan system config: %w", err)
		}
		values[key] = v
	}
	return values, rows.Err()
}

// UpsertSystemConfig writes every entry in one transaction.
func (r *ConfigRepository) UpsertSystemConfig(ctx context.Context, entries ...domain.SystemConfigEntry) error {
	if len(entries) == 0 {
		return nil
	}

	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO system_config (key, value, type, description, category, updated_at)
			VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				type = excluded.type,
				description = excluded.description,
				category = excluded.category,
				updated_at = CURRENT_TIMESTAMP`)
		if err != nil {
			return fmt.Errorf("prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, e.Key, e.Value, e.Type, e.Description, e.Category); err != nil {
				return fmt.Errorf("upsert %s: %w", e.Key, err)
			}
		}
		return nil
	})
}
