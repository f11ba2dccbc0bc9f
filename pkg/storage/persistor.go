package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tbwo/engine/pkg/tbworder"
)

// StorageQuotaBytes is the §6.6 storage quota. Once the persisted corpus
// exceeds this size, the persistor retains only the most recently updated
// work orders (see RetainCount) and drops the rest — receipts and large
// artifacts are expected to live durably elsewhere.
const StorageQuotaBytes = 2 * 1024 * 1024

// RetainCount is how many work orders survive a quota breach.
const RetainCount = 5

// Persistor is the Postgres-backed durable store for WorkOrders, keyed by
// id, holding one JSONB document per row in the §6.6 persisted layout.
type Persistor struct {
	db *sql.DB
}

// NewPersistor wraps an already-migrated Client.
func NewPersistor(c *Client) *Persistor {
	return &Persistor{db: c.db}
}

// Save upserts wo's persisted-layout document, then enforces the storage
// quota.
func (p *Persistor) Save(ctx context.Context, wo *tbworder.WorkOrder) error {
	data, err := Marshal(wo)
	if err != nil {
		return fmt.Errorf("marshal work order %s: %w", wo.ID, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO work_orders (id, status, payload, size_bytes, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			payload = EXCLUDED.payload,
			size_bytes = EXCLUDED.size_bytes,
			updated_at = EXCLUDED.updated_at
	`, wo.ID, string(wo.Status), data, len(data), wo.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save work order %s: %w", wo.ID, err)
	}

	return p.enforceQuota(ctx)
}

// Load fetches and deserializes the work order with the given id.
func (p *Persistor) Load(ctx context.Context, id string) (*tbworder.WorkOrder, error) {
	var data []byte
	err := p.db.QueryRowContext(ctx, `SELECT payload FROM work_orders WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: work order %s", tbworder.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load work order %s: %w", id, err)
	}

	wo, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal work order %s: %w", id, err)
	}
	return wo, nil
}

// List returns every persisted work order, most recently updated first.
func (p *Persistor) List(ctx context.Context) ([]*tbworder.WorkOrder, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT payload FROM work_orders ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list work orders: %w", err)
	}
	defer rows.Close()

	var out []*tbworder.WorkOrder
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan work order row: %w", err)
		}
		wo, err := Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("unmarshal work order row: %w", err)
		}
		out = append(out, wo)
	}
	return out, rows.Err()
}

// Delete removes the work order with the given id. Deleting an absent id
// is not an error.
func (p *Persistor) Delete(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM work_orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete work order %s: %w", id, err)
	}
	return nil
}

// enforceQuota implements §6.6: once the persisted corpus exceeds
// StorageQuotaBytes, only the RetainCount most recently updated work
// orders survive.
func (p *Persistor) enforceQuota(ctx context.Context) error {
	var totalBytes int64
	if err := p.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size_bytes), 0) FROM work_orders`).Scan(&totalBytes); err != nil {
		return fmt.Errorf("sum storage size: %w", err)
	}
	if totalBytes <= StorageQuotaBytes {
		return nil
	}

	_, err := p.db.ExecContext(ctx, `
		DELETE FROM work_orders
		WHERE id NOT IN (
			SELECT id FROM work_orders ORDER BY updated_at DESC LIMIT $1
		)
	`, RetainCount)
	if err != nil {
		return fmt.Errorf("trim storage to quota: %w", err)
	}
	return nil
}
