package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kislikjeka/coopledger/internal/sequence"
)

// issuedColumns lists where the numbers of each series end up. The scan seeds
// a counter row that does not exist yet, e.g. after importing legacy data.
var issuedColumns = map[string]struct{ table, column string }{
	sequence.SeriesShareCertificate:  {"share_transactions", "certificate_no"},
	sequence.SeriesShareTransaction:  {"share_transactions", "transaction_no"},
	sequence.SeriesMember:            {"members", "member_no"},
	sequence.SeriesMeeting:           {"meetings", "meeting_no"},
	sequence.SeriesJournal:           {"journal_entries", "entry_no"},
	sequence.SeriesSavingAccount:     {"saving_accounts", "account_no"},
	sequence.SeriesSavingTransaction: {"saving_transactions", "transaction_no"},
	sequence.SeriesLoan:              {"loan_applications", "loan_no"},
}

// SequenceRepository allocates sequence numbers from counter rows.
//
// Allocation always runs on the pool, never on the caller's transaction, so
// a number is committed (burned) before the business write that uses it.
// A rolled back caller leaves a gap instead of a reusable number.
type SequenceRepository struct {
	pool *pgxpool.Pool
}

// NewSequenceRepository creates a new sequence repository
func NewSequenceRepository(pool *pgxpool.Pool) *SequenceRepository {
	return &SequenceRepository{pool: pool}
}

// Next atomically increments the counter of a tenant series
func (r *SequenceRepository) Next(ctx context.Context, tenantID uuid.UUID, series string) (int64, error) {
	if _, err := sequence.Lookup(series); err != nil {
		return 0, err
	}

	var value int64
	err := r.pool.QueryRow(ctx, `
		UPDATE sequence_counters
		SET value = value + 1, updated_at = NOW()
		WHERE tenant_id = $1 AND series = $2
		RETURNING value
	`, tenantID, series).Scan(&value)
	if err == nil {
		return value, nil
	}
	if !isNoRows(err) {
		return 0, classify(err, "failed to allocate sequence number")
	}

	// First use of the series: seed from what is already issued. A concurrent
	// first use turns this insert into a plain increment.
	seed, err := r.scanIssued(ctx, tenantID, series)
	if err != nil {
		return 0, err
	}

	err = r.pool.QueryRow(ctx, `
		INSERT INTO sequence_counters (tenant_id, series, value, updated_at)
		VALUES ($1, $2, $3 + 1, NOW())
		ON CONFLICT (tenant_id, series)
		DO UPDATE SET
			value = sequence_counters.value + 1,
			updated_at = NOW()
		RETURNING value
	`, tenantID, series, seed).Scan(&value)
	if err != nil {
		return 0, classify(err, "failed to seed sequence counter")
	}
	return value, nil
}

// Current returns the highest value issued so far, taking both the counter
// row and the numbers already stored in the series' table into account.
func (r *SequenceRepository) Current(ctx context.Context, tenantID uuid.UUID, series string) (int64, error) {
	var counter int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(value), 0) FROM sequence_counters WHERE tenant_id = $1 AND series = $2
	`, tenantID, series).Scan(&counter)
	if err != nil {
		return 0, classify(err, "failed to read sequence counter")
	}

	issued, err := r.scanIssued(ctx, tenantID, series)
	if err != nil {
		return 0, err
	}
	return max(counter, issued), nil
}

// Advance moves the counter forward to at least value. It never moves it back.
func (r *SequenceRepository) Advance(ctx context.Context, tenantID uuid.UUID, series string, value int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sequence_counters (tenant_id, series, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tenant_id, series)
		DO UPDATE SET
			value = GREATEST(sequence_counters.value, EXCLUDED.value),
			updated_at = NOW()
	`, tenantID, series, value)
	if err != nil {
		return classify(err, "failed to advance sequence counter")
	}
	return nil
}

func (r *SequenceRepository) scanIssued(ctx context.Context, tenantID uuid.UUID, series string) (int64, error) {
	s, err := sequence.Lookup(series)
	if err != nil {
		return 0, err
	}
	target, ok := issuedColumns[series]
	if !ok {
		return 0, fmt.Errorf("%w: no issued column for %q", sequence.ErrUnknownSeries, series)
	}

	// Table and column come from the whitelist above, never from input
	query := fmt.Sprintf(`
		SELECT COALESCE(MAX(CAST(SUBSTRING(%[2]s FROM '[0-9]+$') AS BIGINT)), 0)
		FROM %[1]s
		WHERE tenant_id = $1 AND %[2]s LIKE $2
	`, target.table, target.column)

	var issued int64
	if err := r.pool.QueryRow(ctx, query, tenantID, s.Prefix+"-%").Scan(&issued); err != nil {
		return 0, classify(err, "failed to scan issued numbers")
	}
	return issued, nil
}
