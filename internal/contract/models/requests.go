package models

import (
	"strings"
	"time"

	id "pact/pkg/domain"
	dErrors "pact/pkg/domain-errors"
)

// PartyInput is one party as supplied at creation time.
type PartyInput struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	PublicKey string `json:"public_key"`
}

// CreateContractRequest is the input for contract creation.
type CreateContractRequest struct {
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	AgreementText string       `json:"agreement_text"`
	Clauses       []string     `json:"clauses"`
	Parties       []PartyInput `json:"parties"`
	UseMediator   bool         `json:"use_mediator"`
	Mediator      *PartyInput  `json:"mediator"`
	ExpiryDate    *time.Time   `json:"expiry_date"`
	// OnChain requests anchoring the contract to the ledger at creation.
	OnChain bool `json:"on_chain"`
}

// Validate checks structural invariants before any state is created.
func (r *CreateContractRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "title is required")
	}
	if strings.TrimSpace(r.AgreementText) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "agreement text is required")
	}
	if len(r.Parties) < MinParties || len(r.Parties) > MaxParties {
		return dErrors.New(dErrors.CodeBadRequest, "number of parties must be between 2 and 10")
	}

	seen := make(map[string]bool, len(r.Parties))
	for _, p := range r.Parties {
		if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Email) == "" {
			return dErrors.New(dErrors.CodeBadRequest, "every party needs a name and email")
		}
		if _, err := id.ParsePartyKey(p.PublicKey); err != nil {
			return err
		}
		if seen[p.PublicKey] {
			return dErrors.New(dErrors.CodeBadRequest, "party public keys must be unique within a contract")
		}
		seen[p.PublicKey] = true
	}

	if r.UseMediator {
		if r.Mediator == nil || strings.TrimSpace(r.Mediator.Email) == "" {
			return dErrors.New(dErrors.CodeBadRequest, "mediator details are required when use_mediator is set")
		}
	}
	return nil
}

// SignRequest is the input for signing a contract.
type SignRequest struct {
	SignerPublicKey string `json:"signer_public_key"`
	// Proof is the signature transaction id or signed-message proof. See
	// the signer configuration for whether it may be empty.
	Proof string `json:"proof"`
}

// RaiseDisputeRequest is the input for raising a dispute.
type RaiseDisputeRequest struct {
	RaisedBy     string        `json:"raised_by"`
	RaisedByName string        `json:"raised_by_name"`
	Reason       DisputeReason `json:"reason"`
	Description  string        `json:"description"`
	Evidence     []Evidence    `json:"evidence"`
}

// Validate checks the dispute request fields.
func (r *RaiseDisputeRequest) Validate() error {
	if strings.TrimSpace(r.RaisedBy) == "" || strings.TrimSpace(r.RaisedByName) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "raised_by and raised_by_name are required")
	}
	if !ValidDisputeReason(r.Reason) {
		return dErrors.New(dErrors.CodeBadRequest, "invalid dispute reason")
	}
	if strings.TrimSpace(r.Description) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "description is required")
	}
	return nil
}

// ResolveDisputeRequest is the input for resolving or rejecting a dispute.
type ResolveDisputeRequest struct {
	ResolvedBy string `json:"resolved_by"`
	Resolution string `json:"resolution"`
}
