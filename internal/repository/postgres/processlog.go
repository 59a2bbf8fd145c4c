package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ndmitriev/payhub/internal/models"
)

// ProcessLogRepo stores the audit trail. Rows are append-only: there is no
// update or delete here on purpose.
type ProcessLogRepo struct {
	DB DBTX
}

const appendRecord = `-- name: AppendRecord
INSERT INTO process_records (id, withdrawal_id, status, processed_by, processed_at, notes)
VALUES ($1, $2, $3, $4, $5, $6)
`

func (r *ProcessLogRepo) Append(ctx context.Context, record models.ProcessRecord) error {
	_, err := r.DB.Exec(ctx, appendRecord,
		record.ID, record.WithdrawalID, record.Status, record.ProcessedBy, record.ProcessedAt, record.Notes,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const listRecordsFor = `-- name: ListRecordsFor
SELECT id, withdrawal_id, status, processed_by, processed_at, notes
FROM process_records
WHERE withdrawal_id = $1
ORDER BY seq DESC
`

func (r *ProcessLogRepo) ListFor(ctx context.Context, withdrawalID uuid.UUID) ([]models.ProcessRecord, error) {
	rows, _ := r.DB.Query(ctx, listRecordsFor, withdrawalID)
	records, err := pgx.CollectRows(rows, rowToProcessRecord)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return records, nil
}

func rowToProcessRecord(row pgx.CollectableRow) (models.ProcessRecord, error) {
	var rec models.ProcessRecord
	err := row.Scan(&rec.ID, &rec.WithdrawalID, &rec.Status, &rec.ProcessedBy, &rec.ProcessedAt, &rec.Notes)
	return rec, err
}
