package sequence_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/coopledger/internal/sequence"
	apperrors "github.com/kislikjeka/coopledger/internal/shared/errors"
	"github.com/kislikjeka/coopledger/pkg/logger"
)

func TestGenerator_NextNumber(t *testing.T) {
	ctx := context.Background()
	gen := sequence.NewGenerator(sequence.NewMemoryAllocator(), logger.Nop(), nil)
	tenantID := uuid.New()

	first, err := gen.NextNumber(ctx, tenantID, sequence.SeriesShareCertificate)
	require.NoError(t, err)
	second, err := gen.NextNumber(ctx, tenantID, sequence.SeriesShareCertificate)
	require.NoError(t, err)

	assert.Equal(t, "CERT-000001", first)
	assert.Equal(t, "CERT-000002", second)

	// Series and tenants count independently
	other, err := gen.NextNumber(ctx, uuid.New(), sequence.SeriesShareCertificate)
	require.NoError(t, err)
	assert.Equal(t, "CERT-000001", other)

	jv, err := gen.NextNumber(ctx, tenantID, sequence.SeriesJournal)
	require.NoError(t, err)
	assert.Equal(t, "JV-000001", jv)
}

func TestGenerator_UnknownSeries(t *testing.T) {
	gen := sequence.NewGenerator(sequence.NewMemoryAllocator(), logger.Nop(), nil)

	_, err := gen.NextNumber(context.Background(), uuid.New(), "voucher")
	require.Error(t, err)
	assert.ErrorIs(t, err, sequence.ErrUnknownSeries)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

type failingAllocator struct{ err error }

func (f failingAllocator) Next(ctx context.Context, tenantID uuid.UUID, series string) (int64, error) {
	return 0, f.err
}

func TestGenerator_AllocatorFailure(t *testing.T) {
	boom := errors.New("counter unavailable")
	gen := sequence.NewGenerator(failingAllocator{err: boom}, logger.Nop(), nil)

	_, err := gen.NextNumber(context.Background(), uuid.New(), sequence.SeriesMember)
	assert.ErrorIs(t, err, boom)
}

func TestGenerator_ConcurrentUnique(t *testing.T) {
	ctx := context.Background()
	gen := sequence.NewGenerator(sequence.NewMemoryAllocator(), logger.Nop(), nil)
	tenantID := uuid.New()

	const workers = 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers)
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := gen.NextNumber(ctx, tenantID, sequence.SeriesShareTransaction)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			seen[n] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers)
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name    string
		series  string
		number  string
		want    int64
		wantErr error
	}{
		{name: "certificate", series: sequence.SeriesShareCertificate, number: "CERT-000123", want: 123},
		{name: "wider than width", series: sequence.SeriesLoan, number: "LN-1234567", want: 1234567},
		{name: "wrong prefix", series: sequence.SeriesShareCertificate, number: "STX-000123", wantErr: sequence.ErrMalformedNumber},
		{name: "too short", series: sequence.SeriesMember, number: "MEM-123", wantErr: sequence.ErrMalformedNumber},
		{name: "non numeric", series: sequence.SeriesMember, number: "MEM-00A123", wantErr: sequence.ErrMalformedNumber},
		{name: "zero", series: sequence.SeriesMember, number: "MEM-000000", wantErr: sequence.ErrMalformedNumber},
		{name: "unknown series", series: "voucher", number: "V-000001", wantErr: sequence.ErrUnknownSeries},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sequence.ParseNumber(tt.series, tt.number)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSeries_FormatRoundTrip(t *testing.T) {
	for _, s := range sequence.All() {
		t.Run(s.Name, func(t *testing.T) {
			n, err := s.Parse(s.Format(42))
			require.NoError(t, err)
			assert.Equal(t, int64(42), n)
		})
	}
}

func TestMemoryAllocator_AdvanceNeverMovesBack(t *testing.T) {
	ctx := context.Background()
	alloc := sequence.NewMemoryAllocator()
	tenantID := uuid.New()

	require.NoError(t, alloc.Advance(ctx, tenantID, sequence.SeriesMember, 7))
	require.NoError(t, alloc.Advance(ctx, tenantID, sequence.SeriesMember, 3))

	current, err := alloc.Current(ctx, tenantID, sequence.SeriesMember)
	require.NoError(t, err)
	assert.Equal(t, int64(7), current)

	n, err := alloc.Next(ctx, tenantID, sequence.SeriesMember)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
}
