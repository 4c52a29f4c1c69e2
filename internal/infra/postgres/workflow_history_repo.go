package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kislikjeka/coopledger/internal/workflow"
)

// historyTables whitelists the tables transition history may be written to.
// Table names cannot be bound as parameters, so only these are interpolated.
var historyTables = map[string]struct{}{
	workflow.DefaultHistoryTable: {},
}

const historyColumns = `id, tenant_id, workflow_name, entity_type, entity_id, from_state, to_state, actor_id, remarks, created_at`

// WorkflowHistoryRepository implements workflow.HistoryRepository for PostgreSQL
type WorkflowHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewWorkflowHistoryRepository creates a new history repository
func NewWorkflowHistoryRepository(pool *pgxpool.Pool) *WorkflowHistoryRepository {
	return &WorkflowHistoryRepository{pool: pool}
}

func checkHistoryTable(table string) error {
	if _, ok := historyTables[table]; !ok {
		return fmt.Errorf("unknown history table %q", table)
	}
	return nil
}

// Append inserts one transition record
func (r *WorkflowHistoryRepository) Append(ctx context.Context, table string, rec *workflow.HistoryRecord) error {
	if err := checkHistoryTable(table); err != nil {
		return err
	}

	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO `+table+` (`+historyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		rec.ID,
		rec.TenantID,
		rec.WorkflowName,
		rec.EntityType,
		rec.EntityID,
		rec.FromState,
		rec.ToState,
		rec.ActorID,
		rec.Remarks,
		rec.CreatedAt,
	)
	if err != nil {
		return classify(err, "failed to append workflow history")
	}
	return nil
}

// Last returns the newest record of an entity, or nil when it has none
func (r *WorkflowHistoryRepository) Last(ctx context.Context, table string, tenantID uuid.UUID, entityType string, entityID uuid.UUID) (*workflow.HistoryRecord, error) {
	records, err := r.list(ctx, table, tenantID, entityType, entityID, " ORDER BY created_at DESC, id DESC LIMIT 1")
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// List returns the records of an entity, oldest first
func (r *WorkflowHistoryRepository) List(ctx context.Context, table string, tenantID uuid.UUID, entityType string, entityID uuid.UUID) ([]*workflow.HistoryRecord, error) {
	return r.list(ctx, table, tenantID, entityType, entityID, " ORDER BY created_at, id")
}

func (r *WorkflowHistoryRepository) list(ctx context.Context, table string, tenantID uuid.UUID, entityType string, entityID uuid.UUID, order string) ([]*workflow.HistoryRecord, error) {
	if err := checkHistoryTable(table); err != nil {
		return nil, err
	}

	q := getQueryer(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT `+historyColumns+`
		FROM `+table+`
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
	`+order, tenantID, entityType, entityID)
	if err != nil {
		return nil, classify(err, "failed to list workflow history")
	}
	defer rows.Close()

	var out []*workflow.HistoryRecord
	for rows.Next() {
		var rec workflow.HistoryRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.TenantID,
			&rec.WorkflowName,
			&rec.EntityType,
			&rec.EntityID,
			&rec.FromState,
			&rec.ToState,
			&rec.ActorID,
			&rec.Remarks,
			&rec.CreatedAt,
		); err != nil {
			return nil, classify(err, "failed to scan workflow history")
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "failed to iterate workflow history")
	}
	return out, nil
}
