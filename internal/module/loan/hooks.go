package loan

import (
	"context"

	"github.com/kislikjeka/coopledger/internal/workflow"
)

// RegisterHooks adds the loan hooks the shipped workflows reference.
// Disbursement is critical: a failed payout keeps the loan approved.
func RegisterHooks(hooks *workflow.HookRegistry, svc *Service) error {
	return hooks.Register(workflow.EntityLoan, workflow.HookDisburseLoan, workflow.Critical,
		func(ctx context.Context, hc *workflow.HookContext) error {
			_, err := svc.Disburse(ctx, hc.Request.TenantID, hc.Entity.ID())
			return err
		})
}
