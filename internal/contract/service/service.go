// Package service coordinates the contract lifecycle: signature collection,
// cancellation, disputes, and the audit trail. All mutations run as a locked
// load-mutate-save cycle against the store, so invariants hold under
// concurrent callers.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"pact/internal/contract/models"
	"pact/internal/notify"
	"pact/internal/platform/metrics"
	"pact/pkg/dochash"
	id "pact/pkg/domain"
	dErrors "pact/pkg/domain-errors"
	"pact/pkg/platform/sentinel"
)

// saveAttempts bounds the optimistic-concurrency retry loop. The per-contract
// lock makes intra-process conflicts impossible; this covers races with other
// replicas sharing the store.
const saveAttempts = 3

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store

// Store is the persistence port the coordinator depends on.
type Store interface {
	Create(ctx context.Context, contract *models.Contract) error
	Load(ctx context.Context, contractID id.ContractID) (*models.Contract, error)
	Save(ctx context.Context, contract *models.Contract) error
	List(ctx context.Context) ([]*models.Contract, error)
}

// Coordinator owns all contract state transitions.
type Coordinator struct {
	store    Store
	notifier notify.Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	locks    *keyedLocks
	now      func() time.Time

	requireProof   bool
	chainNetwork   string
	programAddress string
}

type Option func(c *Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(c *Coordinator) {
		c.notifier = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithProofRequired controls whether Sign rejects an empty signature proof.
func WithProofRequired(required bool) Option {
	return func(c *Coordinator) {
		c.requireProof = required
	}
}

// WithChainInfo sets the ledger network and program used when a contract
// requests on-chain anchoring.
func WithChainInfo(network, programAddress string) Option {
	return func(c *Coordinator) {
		c.chainNetwork = network
		c.programAddress = programAddress
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// New constructs a Coordinator.
func New(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		notifier: notify.Noop{},
		logger:   slog.Default(),
		locks:    newKeyedLocks(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// signedDocument is the canonical content whose hash identifies the
// agreement. Party signature state is deliberately excluded.
type signedDocument struct {
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	AgreementText string   `json:"agreement_text"`
	Clauses       []string `json:"clauses,omitempty"`
	Parties       []struct {
		Name      string `json:"name"`
		Email     string `json:"email"`
		PublicKey string `json:"public_key"`
	} `json:"parties"`
}

// Create validates the request, computes the document hash once, and
// persists the contract in pending state.
func (c *Coordinator) Create(ctx context.Context, req models.CreateContractRequest) (*models.Contract, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := c.now()
	contract := &models.Contract{
		ID:            id.NewContractID(),
		Title:         req.Title,
		Description:   req.Description,
		AgreementText: req.AgreementText,
		Clauses:       req.Clauses,
		UseMediator:   req.UseMediator,
		ExpiryDate:    req.ExpiryDate,
		CreatedAt:     now,
	}
	for _, p := range req.Parties {
		key, err := id.ParsePartyKey(p.PublicKey)
		if err != nil {
			return nil, err
		}
		contract.Parties = append(contract.Parties, models.Party{
			Name:      p.Name,
			Email:     p.Email,
			PublicKey: key,
		})
	}
	if req.UseMediator && req.Mediator != nil {
		key, err := id.ParsePartyKey(req.Mediator.PublicKey)
		if err != nil {
			return nil, err
		}
		contract.Mediator = &models.Mediator{
			Name:      req.Mediator.Name,
			Email:     req.Mediator.Email,
			PublicKey: key,
		}
	}
	if req.OnChain && c.chainNetwork != "" {
		contract.ChainAnchor = &models.ChainAnchor{
			Network:        c.chainNetwork,
			ProgramAddress: c.programAddress,
		}
	}

	hash, err := dochash.Sum(canonicalDocument(contract))
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "hash contract document", err)
	}
	contract.DocumentHash = hash

	contract.Audit("contract_created", "system", now, map[string]any{
		"parties": len(contract.Parties),
	})
	contract.Refresh(now)

	if err := c.store.Create(ctx, contract); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "persist contract", err)
	}

	c.logger.Info("contract created",
		"contract_id", contract.ID.String(),
		"parties", len(contract.Parties))
	if c.metrics != nil {
		c.metrics.ContractsCreated.Inc()
	}
	c.emit(ctx, notify.EventContractCreated, contract, "system", nil)
	return contract, nil
}

// Activate moves a pending contract into signature collection.
func (c *Coordinator) Activate(ctx context.Context, contractID id.ContractID) (*models.Contract, error) {
	contract, err := c.mutate(ctx, contractID, func(contract *models.Contract, now time.Time) error {
		if contract.Status != models.StatusPending {
			return dErrors.New(dErrors.CodeInvalidTransition,
				"only pending contracts can be activated").WithState(contract.Status)
		}
		contract.Activated = true
		contract.Audit("contract_activated", "system", now, nil)
		contract.Refresh(now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.emit(ctx, notify.EventContractActivated, contract, "system", nil)
	return contract, nil
}

// Sign records one party's signature. Preconditions are checked in a fixed
// order so callers always get the most specific rejection: signability
// (including lazy expiry), then signer membership, then double-sign.
func (c *Coordinator) Sign(ctx context.Context, contractID id.ContractID, req models.SignRequest) (*models.Contract, error) {
	signer, err := id.ParsePartyKey(req.SignerPublicKey)
	if err != nil {
		return nil, err
	}
	if c.requireProof && req.Proof == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "signature proof is required")
	}

	var completed bool
	contract, err := c.mutate(ctx, contractID, func(contract *models.Contract, now time.Time) error {
		if err := c.checkSignable(contract, now); err != nil {
			return err
		}

		party := contract.FindParty(signer)
		if party == nil {
			return dErrors.New(dErrors.CodeUnauthorizedSigner,
				"signer is not a party to this contract").WithState(contract.Progress())
		}
		if party.HasSigned {
			return dErrors.New(dErrors.CodeAlreadySigned,
				"party has already signed").WithState(contract.Progress())
		}

		party.HasSigned = true
		party.SignedAt = &now
		party.SignatureProof = req.Proof
		contract.Refresh(now)

		completed = contract.IsFullySigned()
		if completed {
			contract.CompletedAt = &now
		}
		contract.Audit("contract_signed", signer.String(), now, map[string]any{
			"all_signed": completed,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	progress := contract.Progress()
	c.logger.Info("contract signed",
		"contract_id", contract.ID.String(),
		"signer", signer.String(),
		"signed", progress.Signed,
		"total", progress.Total)
	if c.metrics != nil {
		c.metrics.ContractsSigned.Inc()
		if completed {
			c.metrics.ContractsCompleted.Inc()
		}
	}
	event := notify.EventContractSigned
	if completed {
		event = notify.EventContractCompleted
	}
	c.emit(ctx, event, contract, signer.String(), map[string]any{
		"signed":     progress.Signed,
		"total":      progress.Total,
		"percentage": progress.Percentage,
	})
	return contract, nil
}

// checkSignable enforces the signing preconditions tied to contract state.
// When expiry is first observed here the transition is recorded and
// persisted by the surrounding mutate cycle before the rejection returns.
func (c *Coordinator) checkSignable(contract *models.Contract, now time.Time) error {
	prev := contract.Status
	contract.Refresh(now)

	if contract.Status == models.StatusExpired {
		if prev != models.StatusExpired {
			contract.Audit("contract_expired", "system", now, nil)
		}
		return dErrors.New(dErrors.CodeExpired,
			"contract expired before all parties signed").WithState(contract.Progress())
	}
	if !contract.Signable() {
		return dErrors.New(dErrors.CodeNotSignable,
			"contract is not accepting signatures in its current state").WithState(contract.Status)
	}
	return nil
}

// Cancel voids a contract before signature collection completes. Only a
// party may cancel, and only while nothing has been signed.
func (c *Coordinator) Cancel(ctx context.Context, contractID id.ContractID, requestedBy string) (*models.Contract, error) {
	requester, err := id.ParsePartyKey(requestedBy)
	if err != nil {
		return nil, err
	}
	contract, err := c.mutate(ctx, contractID, func(contract *models.Contract, now time.Time) error {
		if !contract.IsParty(requester) {
			return dErrors.New(dErrors.CodeForbidden, "only a party may cancel the contract")
		}
		contract.Refresh(now)
		switch contract.Status {
		case models.StatusPending, models.StatusActive:
		default:
			return dErrors.New(dErrors.CodeInvalidTransition,
				"contract can no longer be cancelled").WithState(contract.Status)
		}
		contract.Cancelled = true
		contract.CancelledBy = requester
		contract.Audit("contract_cancelled", requester.String(), now, nil)
		contract.Refresh(now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.emit(ctx, notify.EventContractCancelled, contract, requester.String(), nil)
	return contract, nil
}

// Get returns the contract with its status derived as of now. The expiry
// transition is surfaced but only persisted by mutating operations.
func (c *Coordinator) Get(ctx context.Context, contractID id.ContractID) (*models.Contract, error) {
	contract, err := c.load(ctx, contractID)
	if err != nil {
		return nil, err
	}
	contract.Status = contract.DeriveStatus(c.now())
	return contract, nil
}

// List returns all contracts with derived status.
func (c *Coordinator) List(ctx context.Context) ([]*models.Contract, error) {
	contracts, err := c.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "list contracts", err)
	}
	now := c.now()
	for _, contract := range contracts {
		contract.Status = contract.DeriveStatus(now)
	}
	return contracts, nil
}

// Progress returns the current signing progress.
func (c *Coordinator) Progress(ctx context.Context, contractID id.ContractID) (models.SigningProgress, error) {
	contract, err := c.load(ctx, contractID)
	if err != nil {
		return models.SigningProgress{}, err
	}
	return contract.Progress(), nil
}

// AuditTrail returns the append-only audit log.
func (c *Coordinator) AuditTrail(ctx context.Context, contractID id.ContractID) ([]models.AuditEntry, error) {
	contract, err := c.load(ctx, contractID)
	if err != nil {
		return nil, err
	}
	return contract.AuditLog, nil
}

func (c *Coordinator) load(ctx context.Context, contractID id.ContractID) (*models.Contract, error) {
	contract, err := c.store.Load(ctx, contractID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "contract not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "load contract", err)
	}
	return contract, nil
}

// mutate runs fn inside the per-contract lock as a load-mutate-save cycle.
// A version conflict reloads fresh state and reapplies fn, up to
// saveAttempts times.
func (c *Coordinator) mutate(ctx context.Context, contractID id.ContractID, fn func(contract *models.Contract, now time.Time) error) (*models.Contract, error) {
	unlock := c.locks.lock(contractID)
	defer unlock()

	for attempt := 1; ; attempt++ {
		contract, err := c.load(ctx, contractID)
		if err != nil {
			return nil, err
		}
		prevStatus := contract.Status
		if err := fn(contract, c.now()); err != nil {
			// A rejection that first observed expiry still needs that
			// transition persisted; rejections against an already-expired
			// contract stay side-effect free.
			if dErrors.HasCode(err, dErrors.CodeExpired) && prevStatus != models.StatusExpired {
				if saveErr := c.store.Save(ctx, contract); saveErr != nil {
					c.logger.Warn("persist expiry transition",
						"contract_id", contractID.String(), "error", saveErr)
				} else {
					c.emit(ctx, notify.EventContractExpired, contract, "system", nil)
				}
			}
			return nil, err
		}
		err = c.store.Save(ctx, contract)
		if err == nil {
			return contract, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(dErrors.CodeInternal, "persist contract", err)
		}
		if attempt >= saveAttempts {
			return nil, dErrors.Wrap(dErrors.CodeConflict,
				"contract was modified concurrently", err)
		}
	}
}

// emit publishes a notification. Delivery failures are logged and dropped;
// state transitions never roll back for a broker problem.
func (c *Coordinator) emit(ctx context.Context, event notify.Event, contract *models.Contract, actor string, details map[string]any) {
	msg := notify.Message{
		Event:      event,
		ContractID: contract.ID.String(),
		Actor:      actor,
		Timestamp:  c.now(),
		Details:    details,
	}
	if err := c.notifier.Publish(ctx, msg); err != nil {
		c.logger.Warn("publish notification",
			"event", string(event),
			"contract_id", contract.ID.String(),
			"error", err)
	}
}

func canonicalDocument(contract *models.Contract) signedDocument {
	doc := signedDocument{
		Title:         contract.Title,
		Description:   contract.Description,
		AgreementText: contract.AgreementText,
		Clauses:       contract.Clauses,
	}
	for _, p := range contract.Parties {
		doc.Parties = append(doc.Parties, struct {
			Name      string `json:"name"`
			Email     string `json:"email"`
			PublicKey string `json:"public_key"`
		}{Name: p.Name, Email: p.Email, PublicKey: p.PublicKey.String()})
	}
	return doc
}
