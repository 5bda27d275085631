// Package domain holds the typed identifiers shared across services. Each ID
// is a distinct type over uuid.UUID so the compiler rejects cross-type mixups
// (passing a DisputeID where a ContractID is expected).
package domain

import (
	"github.com/google/uuid"

	dErrors "pact/pkg/domain-errors"
)

// ContractID identifies a contract aggregate.
type ContractID uuid.UUID

// DisputeID identifies a dispute within a contract.
type DisputeID uuid.UUID

// PartyKey is a party's public-key identity on the ledger network. It is the
// unit of signer authorization: exactly one party per contract owns a key.
type PartyKey string

func NewContractID() ContractID { return ContractID(uuid.New()) }
func NewDisputeID() DisputeID   { return DisputeID(uuid.New()) }

func (id ContractID) String() string { return uuid.UUID(id).String() }
func (id DisputeID) String() string  { return uuid.UUID(id).String() }

func (id ContractID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DisputeID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

// Defined types do not inherit uuid.UUID's method set, so text marshaling is
// spelled out; without it IDs would serialize as raw byte arrays.

func (id ContractID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id DisputeID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }

func (id *ContractID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*id = ContractID(u)
	return nil
}

func (id *DisputeID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*id = DisputeID(u)
	return nil
}

// ParseContractID parses and validates an opaque contract identifier.
// IDs must be valid, non-nil UUIDs.
func ParseContractID(s string) (ContractID, error) {
	u, err := parseUUID(s, "contract id")
	return ContractID(u), err
}

// ParseDisputeID parses and validates a dispute identifier.
func ParseDisputeID(s string) (DisputeID, error) {
	u, err := parseUUID(s, "dispute id")
	return DisputeID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, label+" must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, label+" must not be nil")
	}
	return u, nil
}

// Ledger public keys are base58-encoded 32-byte values; the encoded form is
// between 32 and 44 characters. We validate shape only, the chain validates
// the rest.
const (
	minPartyKeyLen = 32
	maxPartyKeyLen = 44
)

// ParsePartyKey validates the shape of a ledger public key.
func ParsePartyKey(s string) (PartyKey, error) {
	if len(s) < minPartyKeyLen || len(s) > maxPartyKeyLen {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid public key format")
	}
	return PartyKey(s), nil
}

func (k PartyKey) String() string { return string(k) }
