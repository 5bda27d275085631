// Package models defines the Contract aggregate and its derived state.
// Contract status is a pure function of persisted facts (signatures,
// disputes, expiry, explicit cancellation) computed by DeriveStatus; no code
// path writes status by hand, which is what keeps divergent writers out.
package models

import (
	"time"

	id "pact/pkg/domain"
)

// Status is the contract lifecycle state.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPending         Status = "pending"
	StatusActive          Status = "active"
	StatusPartiallySigned Status = "partially_signed"
	StatusFullySigned     Status = "fully_signed"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
	StatusExpired         Status = "expired"
	StatusDisputed        Status = "disputed"
	StatusDisputeResolved Status = "dispute_resolved"
)

// Party is a named participant with a unique public-key identity.
type Party struct {
	Name           string      `json:"name"`
	Email          string      `json:"email"`
	PublicKey      id.PartyKey `json:"public_key"`
	HasSigned      bool        `json:"has_signed"`
	SignedAt       *time.Time  `json:"signed_at,omitempty"`
	SignatureProof string      `json:"signature_proof,omitempty"`
}

// Mediator is the optional neutral participant who may resolve disputes but
// never signs.
type Mediator struct {
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	PublicKey id.PartyKey `json:"public_key,omitempty"`
}

// ChainAnchor records the optional association with an on-chain record.
type ChainAnchor struct {
	Network         string `json:"network"`
	ProgramAddress  string `json:"program_address"`
	ContractAddress string `json:"contract_address"`
	LastTxID        string `json:"last_tx_id,omitempty"`
}

// DisputeStatus is a dispute's own lifecycle state.
type DisputeStatus string

const (
	DisputeOpen        DisputeStatus = "open"
	DisputeUnderReview DisputeStatus = "under_review"
	DisputeResolved    DisputeStatus = "resolved"
	DisputeRejected    DisputeStatus = "rejected"
)

// Terminal reports whether the dispute can no longer change.
func (s DisputeStatus) Terminal() bool {
	return s == DisputeResolved || s == DisputeRejected
}

// DisputeReason is the closed category a dispute must fall into.
type DisputeReason string

const (
	ReasonBreach         DisputeReason = "breach_of_terms"
	ReasonNonPayment     DisputeReason = "non_payment"
	ReasonMisrepresented DisputeReason = "misrepresentation"
	ReasonQuality        DisputeReason = "quality_of_work"
	ReasonOther          DisputeReason = "other"
)

// ValidDisputeReason reports whether r is one of the closed categories.
func ValidDisputeReason(r DisputeReason) bool {
	switch r {
	case ReasonBreach, ReasonNonPayment, ReasonMisrepresented, ReasonQuality, ReasonOther:
		return true
	}
	return false
}

// EvidenceKind classifies a piece of dispute evidence.
type EvidenceKind string

const (
	EvidenceDocument EvidenceKind = "document"
	EvidenceImage    EvidenceKind = "image"
	EvidenceText     EvidenceKind = "text"
	EvidenceLink     EvidenceKind = "link"
)

// Evidence is one supporting item attached to a dispute.
type Evidence struct {
	Kind       EvidenceKind `json:"kind"`
	Content    string       `json:"content"`
	Filename   string       `json:"filename,omitempty"`
	UploadedAt time.Time    `json:"uploaded_at"`
}

// Dispute is an adversarial claim against an otherwise-progressing
// agreement.
type Dispute struct {
	ID           id.DisputeID  `json:"id"`
	RaisedBy     id.PartyKey   `json:"raised_by"`
	RaisedByName string        `json:"raised_by_name"`
	Reason       DisputeReason `json:"reason"`
	Description  string        `json:"description"`
	Status       DisputeStatus `json:"status"`
	Resolution   string        `json:"resolution,omitempty"`
	ResolvedBy   id.PartyKey   `json:"resolved_by,omitempty"`
	ResolvedAt   *time.Time    `json:"resolved_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	Evidence     []Evidence    `json:"evidence,omitempty"`
}

// AuditEntry is one append-only record of a state-changing action.
type AuditEntry struct {
	Action    string         `json:"action"`
	Actor     string         `json:"actor"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// SigningProgress summarizes aggregate signature state.
type SigningProgress struct {
	Signed     int `json:"signed"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// Contract is the aggregate root. DocumentHash is computed once at creation
// and never recomputed; any structural edit implies a new Contract.
type Contract struct {
	ID            id.ContractID `json:"id"`
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	AgreementText string        `json:"agreement_text"`
	Clauses       []string      `json:"clauses,omitempty"`
	DocumentHash  string        `json:"document_hash"`

	Parties     []Party      `json:"parties"`
	UseMediator bool         `json:"use_mediator"`
	Mediator    *Mediator    `json:"mediator,omitempty"`
	ChainAnchor *ChainAnchor `json:"chain_anchor,omitempty"`

	Status Status `json:"status"`
	// Activated/Cancelled are the explicit lifecycle facts DeriveStatus
	// combines with signature, dispute and expiry state.
	Activated   bool        `json:"activated"`
	Cancelled   bool        `json:"cancelled"`
	CancelledBy id.PartyKey `json:"cancelled_by,omitempty"`

	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Disputes []Dispute    `json:"disputes,omitempty"`
	AuditLog []AuditEntry `json:"audit_log,omitempty"`

	// Version supports the optimistic concurrency check in the store.
	Version int64 `json:"version"`
}

const (
	MinParties = 2
	MaxParties = 10
)

// FindParty returns the party with the given public key, or nil.
func (c *Contract) FindParty(key id.PartyKey) *Party {
	for i := range c.Parties {
		if c.Parties[i].PublicKey == key {
			return &c.Parties[i]
		}
	}
	return nil
}

// IsParty reports whether key identifies one of the contract's parties.
func (c *Contract) IsParty(key id.PartyKey) bool {
	return c.FindParty(key) != nil
}

// IsMediator reports whether key identifies the contract's mediator.
func (c *Contract) IsMediator(key id.PartyKey) bool {
	return c.UseMediator && c.Mediator != nil && c.Mediator.PublicKey == key
}

// FindDispute returns the dispute with the given id, or nil.
func (c *Contract) FindDispute(disputeID id.DisputeID) *Dispute {
	for i := range c.Disputes {
		if c.Disputes[i].ID == disputeID {
			return &c.Disputes[i]
		}
	}
	return nil
}

// IsFullySigned reports whether every party has signed.
func (c *Contract) IsFullySigned() bool {
	for _, p := range c.Parties {
		if !p.HasSigned {
			return false
		}
	}
	return len(c.Parties) > 0
}

// SignedCount returns how many parties have signed.
func (c *Contract) SignedCount() int {
	n := 0
	for _, p := range c.Parties {
		if p.HasSigned {
			n++
		}
	}
	return n
}

// Progress returns the signing-progress summary.
func (c *Contract) Progress() SigningProgress {
	total := len(c.Parties)
	signed := c.SignedCount()
	pct := 0
	if total > 0 {
		pct = int(float64(signed)/float64(total)*100 + 0.5)
	}
	return SigningProgress{Signed: signed, Total: total, Percentage: pct}
}

// HasOpenDispute reports whether at least one dispute is not yet terminal.
func (c *Contract) HasOpenDispute() bool {
	for _, d := range c.Disputes {
		if !d.Status.Terminal() {
			return true
		}
	}
	return false
}

// Expired reports whether the expiry deadline has passed as of now. Expiry
// is evaluated lazily on observation, never by a background timer.
func (c *Contract) Expired(now time.Time) bool {
	return c.ExpiryDate != nil && now.After(*c.ExpiryDate)
}

// DeriveStatus computes contract status from persisted facts, in strict
// precedence order: cancellation, then open disputes, then a past dispute
// cycle, then expiry, then signature state.
func (c *Contract) DeriveStatus(now time.Time) Status {
	if c.Cancelled {
		return StatusCancelled
	}
	if c.HasOpenDispute() {
		return StatusDisputed
	}
	if len(c.Disputes) > 0 {
		// All disputes closed: the contract never silently returns to its
		// prior active state.
		return StatusDisputeResolved
	}
	if c.IsFullySigned() {
		return StatusFullySigned
	}
	if c.Expired(now) && c.Activated {
		return StatusExpired
	}
	if !c.Activated {
		return StatusPending
	}
	if c.SignedCount() > 0 {
		return StatusPartiallySigned
	}
	return StatusActive
}

// Refresh recomputes and stores the derived status and bumps UpdatedAt.
func (c *Contract) Refresh(now time.Time) {
	c.Status = c.DeriveStatus(now)
	c.UpdatedAt = now
}

// Audit appends an entry to the contract's append-only audit log.
func (c *Contract) Audit(action, actor string, at time.Time, details map[string]any) {
	c.AuditLog = append(c.AuditLog, AuditEntry{
		Action:    action,
		Actor:     actor,
		Timestamp: at,
		Details:   details,
	})
}

// Signable reports whether the contract is in a state that accepts
// signatures. Expiry is checked separately so it can be surfaced as its own
// error kind.
func (c *Contract) Signable() bool {
	return c.Status == StatusActive || c.Status == StatusPartiallySigned
}

// Disputable reports whether disputes may be raised in the current state.
func (c *Contract) Disputable() bool {
	switch c.Status {
	case StatusActive, StatusPartiallySigned, StatusFullySigned, StatusCompleted:
		return true
	}
	return false
}
