package member

import (
	"context"

	"github.com/kislikjeka/coopledger/internal/module/share"
	"github.com/kislikjeka/coopledger/internal/workflow"
)

// RegisterHooks adds the member hooks the KYC workflow references. Posting
// the entry fee and the initial shares are critical; the announcement is
// best effort.
func RegisterHooks(hooks *workflow.HookRegistry, svc *Service, shares ShareIssuer) error {
	if err := hooks.Register(workflow.EntityMember, workflow.HookPostEntryFee, workflow.Critical,
		func(ctx context.Context, hc *workflow.HookContext) error {
			m, err := svc.Get(ctx, hc.Request.TenantID, hc.Entity.ID())
			if err != nil {
				return err
			}
			_, err = svc.PostEntryFee(ctx, m.TenantID, m.ID, m.PaysCash)
			return err
		}); err != nil {
		return err
	}

	if err := hooks.Register(workflow.EntityMember, workflow.HookIssueInitialShares, workflow.Critical,
		func(ctx context.Context, hc *workflow.HookContext) error {
			m, err := svc.Get(ctx, hc.Request.TenantID, hc.Entity.ID())
			if err != nil {
				return err
			}
			if m.InitialKitta == 0 {
				return nil
			}
			if m.ShareClassID == nil {
				return ErrMissingShareClass
			}
			_, err = shares.IssueShares(ctx, share.IssueParams{
				TenantID:     m.TenantID,
				MemberID:     m.ID,
				ShareClassID: *m.ShareClassID,
				Kitta:        m.InitialKitta,
				IsCash:       m.PaysCash,
				Remarks:      "initial shares of " + m.MemberNo,
			})
			return err
		}); err != nil {
		return err
	}

	return hooks.Register(workflow.EntityMember, workflow.HookAnnounce, workflow.BestEffort,
		func(ctx context.Context, hc *workflow.HookContext) error {
			return svc.Announce(ctx, hc.Request.TenantID, hc.Entity.ID())
		})
}
