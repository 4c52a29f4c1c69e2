package share_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/coopledger/internal/events"
	"github.com/kislikjeka/coopledger/internal/ledger"
	"github.com/kislikjeka/coopledger/internal/ledger/ledgertest"
	"github.com/kislikjeka/coopledger/internal/module/share"
	"github.com/kislikjeka/coopledger/internal/module/share/sharetest"
	apperrors "github.com/kislikjeka/coopledger/internal/shared/errors"
	"github.com/kislikjeka/coopledger/pkg/logger"
	"github.com/kislikjeka/coopledger/pkg/money"
)

type harness struct {
	f     *ledgertest.Fixture
	repo  *sharetest.Repository
	svc   *share.Service
	class *share.Class
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	f := ledgertest.NewFixture(t)
	repo := sharetest.NewRepository()
	svc := share.NewService(repo, f.Ledger, f.Chart, f.Sequences, f.Emitter, f.Runner, logger.Nop())

	class, err := svc.CreateClass(context.Background(), &share.Class{
		TenantID:  f.TenantID,
		Name:      "Ordinary",
		UnitPrice: money.MustParse("100"),
	})
	require.NoError(t, err)
	f.Map(t, ledger.ProductShare, class.ID, ledger.MappingShareCapital, ledger.CodeShareCapital)

	return &harness{f: f, repo: repo, svc: svc, class: class}
}

func (h *harness) issue(t *testing.T, memberID uuid.UUID, kitta int64) *share.Transaction {
	t.Helper()
	tx, err := h.svc.IssueShares(context.Background(), share.IssueParams{
		TenantID:     h.f.TenantID,
		MemberID:     memberID,
		ShareClassID: h.class.ID,
		Kitta:        kitta,
		IsCash:       true,
	})
	require.NoError(t, err)
	return tx
}

func TestIssueShares_PostsCapitalAndAllocatesCertificate(t *testing.T) {
	h := newHarness(t)
	memberID := uuid.New()

	first := h.issue(t, memberID, 10)
	second := h.issue(t, uuid.New(), 5)

	require.NotNil(t, first.CertificateNo)
	require.NotNil(t, second.CertificateNo)
	assert.Equal(t, "CERT-000001", *first.CertificateNo)
	assert.Equal(t, "CERT-000002", *second.CertificateNo)
	assert.Equal(t, "STX-000001", first.TransactionNo)
	assert.True(t, first.Amount.Equal(money.MustParse("1000")))

	assert.True(t, h.f.Balance(t, ledger.CodeCashInHand).Equal(money.MustParse("1500")))
	assert.True(t, h.f.Balance(t, ledger.CodeShareCapital).Equal(money.MustParse("1500")))

	account, err := h.repo.GetAccountForUpdate(context.Background(), h.f.TenantID, memberID, h.class.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), account.TotalKitta)
	assert.True(t, account.Amount.Equal(money.MustParse("1000")))

	net, err := h.f.Ledger.SubledgerNet(context.Background(), h.f.TenantID,
		h.f.AccountID(t, ledger.CodeShareCapital),
		ledger.SubledgerRef{Type: ledger.SubledgerShareAccount, ID: account.ID})
	require.NoError(t, err)
	assert.True(t, net.Equal(account.Amount))

	evs := h.f.Events.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, events.TypeSharePurchase, evs[0].Type)
	assert.Equal(t, memberID, evs[0].MemberID)
	assert.True(t, evs[0].IsCash)
}

func TestIssueShares_AccumulatesOnSameAccount(t *testing.T) {
	h := newHarness(t)
	memberID := uuid.New()

	first := h.issue(t, memberID, 10)
	second := h.issue(t, memberID, 4)

	assert.Equal(t, first.ShareAccountID, second.ShareAccountID)

	account, err := h.svc.GetAccount(context.Background(), h.f.TenantID, first.ShareAccountID)
	require.NoError(t, err)
	assert.Equal(t, int64(14), account.TotalKitta)
	assert.True(t, account.Amount.Equal(money.MustParse("1400")))

	txs, err := h.svc.ListTransactions(context.Background(), h.f.TenantID, account.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestIssueShares_BankSettlement(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.IssueShares(context.Background(), share.IssueParams{
		TenantID:     h.f.TenantID,
		MemberID:     uuid.New(),
		ShareClassID: h.class.ID,
		Kitta:        3,
		IsCash:       false,
	})
	require.NoError(t, err)

	assert.True(t, h.f.Balance(t, ledger.CodeBank).Equal(money.MustParse("300")))
	assert.True(t, h.f.Balance(t, ledger.CodeCashInHand).IsZero())
}

func TestIssueShares_Validation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name    string
		params  share.IssueParams
		wantErr error
	}{
		{
			name:    "zero kitta",
			params:  share.IssueParams{TenantID: h.f.TenantID, MemberID: uuid.New(), ShareClassID: h.class.ID, Kitta: 0},
			wantErr: share.ErrInvalidKitta,
		},
		{
			name:    "missing member",
			params:  share.IssueParams{TenantID: h.f.TenantID, ShareClassID: h.class.ID, Kitta: 1},
			wantErr: share.ErrMissingMember,
		},
		{
			name:    "missing class",
			params:  share.IssueParams{TenantID: h.f.TenantID, MemberID: uuid.New(), Kitta: 1},
			wantErr: share.ErrMissingShareClass,
		},
		{
			name:    "missing tenant",
			params:  share.IssueParams{MemberID: uuid.New(), ShareClassID: h.class.ID, Kitta: 1},
			wantErr: ledger.ErrMissingTenant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.IssueShares(context.Background(), tt.params)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
		})
	}
	assert.Empty(t, h.f.Repo.Entries())
}

func TestIssueShares_UnknownClass(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.IssueShares(context.Background(), share.IssueParams{
		TenantID:     h.f.TenantID,
		MemberID:     uuid.New(),
		ShareClassID: uuid.New(),
		Kitta:        1,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, share.ErrShareClassNotFound)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestIssueShares_MissingCapitalMapping(t *testing.T) {
	f := ledgertest.NewFixture(t)
	repo := sharetest.NewRepository()
	svc := share.NewService(repo, f.Ledger, f.Chart, f.Sequences, f.Emitter, f.Runner, logger.Nop())
	class, err := svc.CreateClass(context.Background(), &share.Class{
		TenantID:  f.TenantID,
		Name:      "Preference",
		UnitPrice: decimal.NewFromInt(50),
	})
	require.NoError(t, err)

	_, err = svc.IssueShares(context.Background(), share.IssueParams{
		TenantID:     f.TenantID,
		MemberID:     uuid.New(),
		ShareClassID: class.ID,
		Kitta:        2,
		IsCash:       true,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrGLMappingNotConfigured)
	assert.Empty(t, f.Repo.Entries())
	assert.Empty(t, f.Events.Events())
}

func TestReturnShares(t *testing.T) {
	h := newHarness(t)
	memberID := uuid.New()
	h.issue(t, memberID, 10)

	tx, err := h.svc.ReturnShares(context.Background(), share.ReturnParams{
		TenantID:     h.f.TenantID,
		MemberID:     memberID,
		ShareClassID: h.class.ID,
		Kitta:        4,
		IsCash:       true,
	})
	require.NoError(t, err)

	assert.Equal(t, share.TransactionReturn, tx.Type)
	assert.Nil(t, tx.CertificateNo)
	assert.True(t, tx.Amount.Equal(money.MustParse("400")))
	assert.True(t, h.f.Balance(t, ledger.CodeShareCapital).Equal(money.MustParse("600")))
	assert.True(t, h.f.Balance(t, ledger.CodeCashInHand).Equal(money.MustParse("600")))

	account, err := h.svc.GetAccount(context.Background(), h.f.TenantID, tx.ShareAccountID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), account.TotalKitta)

	evs := h.f.Events.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, events.TypeShareReturn, evs[1].Type)
}

func TestReturnShares_MoreThanHeld(t *testing.T) {
	h := newHarness(t)
	memberID := uuid.New()
	h.issue(t, memberID, 3)
	entriesBefore := len(h.f.Repo.Entries())

	_, err := h.svc.ReturnShares(context.Background(), share.ReturnParams{
		TenantID:     h.f.TenantID,
		MemberID:     memberID,
		ShareClassID: h.class.ID,
		Kitta:        5,
		IsCash:       true,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, share.ErrInsufficientKitta)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeStateConflict, appErr.Code)
	assert.Equal(t, int64(3), appErr.Details["current_kitta"])
	assert.Equal(t, int64(5), appErr.Details["requested_kitta"])
	assert.Len(t, h.f.Repo.Entries(), entriesBefore)
}

func TestReturnShares_NoAccount(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.ReturnShares(context.Background(), share.ReturnParams{
		TenantID:     h.f.TenantID,
		MemberID:     uuid.New(),
		ShareClassID: h.class.ID,
		Kitta:        1,
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, share.ErrShareAccountNotFound))
}

func TestCreateClass_RejectsNonPositivePrice(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.CreateClass(context.Background(), &share.Class{
		TenantID:  h.f.TenantID,
		Name:      "Free",
		UnitPrice: decimal.Zero,
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}
