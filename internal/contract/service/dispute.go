package service

import (
	"context"
	"time"

	"pact/internal/contract/models"
	"pact/internal/notify"
	id "pact/pkg/domain"
	dErrors "pact/pkg/domain-errors"
)

// RaiseDispute opens a dispute against a progressing contract. Only a party
// may raise one, and only while the contract is active, collecting
// signatures, fully signed, or completed.
func (c *Coordinator) RaiseDispute(ctx context.Context, contractID id.ContractID, req models.RaiseDisputeRequest) (*models.Dispute, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	raiser, err := id.ParsePartyKey(req.RaisedBy)
	if err != nil {
		return nil, err
	}

	var dispute models.Dispute
	contract, err := c.mutate(ctx, contractID, func(contract *models.Contract, now time.Time) error {
		if !contract.IsParty(raiser) {
			return dErrors.New(dErrors.CodeForbidden, "only a party may raise a dispute")
		}
		contract.Refresh(now)
		if !contract.Disputable() {
			return dErrors.New(dErrors.CodeInvalidTransition,
				"disputes cannot be raised in the contract's current state").WithState(contract.Status)
		}

		dispute = models.Dispute{
			ID:           id.NewDisputeID(),
			RaisedBy:     raiser,
			RaisedByName: req.RaisedByName,
			Reason:       req.Reason,
			Description:  req.Description,
			Status:       models.DisputeOpen,
			Evidence:     req.Evidence,
			CreatedAt:    now,
		}
		contract.Disputes = append(contract.Disputes, dispute)
		contract.Audit("dispute_raised", raiser.String(), now, map[string]any{
			"dispute_id": dispute.ID.String(),
			"reason":     string(req.Reason),
		})
		contract.Refresh(now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("dispute raised",
		"contract_id", contract.ID.String(),
		"dispute_id", dispute.ID.String(),
		"reason", string(dispute.Reason))
	if c.metrics != nil {
		c.metrics.DisputesRaised.Inc()
	}
	c.emit(ctx, notify.EventDisputeRaised, contract, raiser.String(), map[string]any{
		"dispute_id": dispute.ID.String(),
		"reason":     string(dispute.Reason),
	})
	return &dispute, nil
}

// ReviewDispute moves an open dispute under review. A party or the mediator
// may start the review.
func (c *Coordinator) ReviewDispute(ctx context.Context, contractID id.ContractID, disputeID id.DisputeID, reviewedBy string) (*models.Dispute, error) {
	reviewer, err := id.ParsePartyKey(reviewedBy)
	if err != nil {
		return nil, err
	}

	var reviewed models.Dispute
	contract, err := c.mutate(ctx, contractID, func(contract *models.Contract, now time.Time) error {
		dispute, err := c.resolvableDispute(contract, disputeID, reviewer)
		if err != nil {
			return err
		}
		if dispute.Status != models.DisputeOpen {
			return dErrors.New(dErrors.CodeInvalidTransition,
				"only open disputes can move under review").WithState(dispute.Status)
		}
		dispute.Status = models.DisputeUnderReview
		contract.Audit("dispute_under_review", reviewer.String(), now, map[string]any{
			"dispute_id": disputeID.String(),
		})
		contract.Refresh(now)
		reviewed = *dispute
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.emit(ctx, notify.EventDisputeReviewed, contract, reviewer.String(), map[string]any{
		"dispute_id": disputeID.String(),
	})
	return &reviewed, nil
}

// ResolveDispute closes a dispute as resolved.
func (c *Coordinator) ResolveDispute(ctx context.Context, contractID id.ContractID, disputeID id.DisputeID, req models.ResolveDisputeRequest) (*models.Dispute, error) {
	return c.closeDispute(ctx, contractID, disputeID, req, models.DisputeResolved)
}

// RejectDispute closes a dispute as rejected.
func (c *Coordinator) RejectDispute(ctx context.Context, contractID id.ContractID, disputeID id.DisputeID, req models.ResolveDisputeRequest) (*models.Dispute, error) {
	return c.closeDispute(ctx, contractID, disputeID, req, models.DisputeRejected)
}

// ListDisputes returns the contract's disputes.
func (c *Coordinator) ListDisputes(ctx context.Context, contractID id.ContractID) ([]models.Dispute, error) {
	contract, err := c.load(ctx, contractID)
	if err != nil {
		return nil, err
	}
	return contract.Disputes, nil
}

func (c *Coordinator) closeDispute(ctx context.Context, contractID id.ContractID, disputeID id.DisputeID, req models.ResolveDisputeRequest, outcome models.DisputeStatus) (*models.Dispute, error) {
	resolver, err := id.ParsePartyKey(req.ResolvedBy)
	if err != nil {
		return nil, err
	}

	action := "dispute_resolved"
	event := notify.EventDisputeResolved
	if outcome == models.DisputeRejected {
		action = "dispute_rejected"
		event = notify.EventDisputeRejected
	}

	var closed models.Dispute
	contract, err := c.mutate(ctx, contractID, func(contract *models.Contract, now time.Time) error {
		dispute, err := c.resolvableDispute(contract, disputeID, resolver)
		if err != nil {
			return err
		}
		if dispute.Status.Terminal() {
			return dErrors.New(dErrors.CodeInvalidTransition,
				"dispute is already closed").WithState(dispute.Status)
		}
		dispute.Status = outcome
		dispute.Resolution = req.Resolution
		dispute.ResolvedBy = resolver
		dispute.ResolvedAt = &now
		contract.Audit(action, resolver.String(), now, map[string]any{
			"dispute_id": disputeID.String(),
		})
		contract.Refresh(now)
		closed = *dispute
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info(action,
		"contract_id", contract.ID.String(),
		"dispute_id", disputeID.String(),
		"contract_status", string(contract.Status))
	if c.metrics != nil {
		c.metrics.DisputesResolved.Inc()
	}
	c.emit(ctx, event, contract, resolver.String(), map[string]any{
		"dispute_id":      disputeID.String(),
		"contract_status": string(contract.Status),
	})
	return &closed, nil
}

// resolvableDispute locates the dispute and checks the actor is entitled to
// act on it (a party or the mediator).
func (c *Coordinator) resolvableDispute(contract *models.Contract, disputeID id.DisputeID, actor id.PartyKey) (*models.Dispute, error) {
	if !contract.IsParty(actor) && !contract.IsMediator(actor) {
		return nil, dErrors.New(dErrors.CodeForbidden,
			"only a party or the mediator may act on a dispute")
	}
	dispute := contract.FindDispute(disputeID)
	if dispute == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "dispute not found")
	}
	return dispute, nil
}
