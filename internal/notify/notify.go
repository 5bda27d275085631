// Package notify defines the outbound notification port. The core emits
// events after each state transition and never blocks on, or rolls back for,
// delivery: a failed publish is logged and dropped.
package notify

import (
	"context"
	"time"
)

// Event names the state transition that produced a notification.
type Event string

const (
	EventContractCreated   Event = "contract.created"
	EventContractActivated Event = "contract.activated"
	EventContractSigned    Event = "contract.signed"
	EventContractCompleted Event = "contract.completed"
	EventContractCancelled Event = "contract.cancelled"
	EventContractExpired   Event = "contract.expired"
	EventDisputeRaised     Event = "dispute.raised"
	EventDisputeReviewed   Event = "dispute.reviewed"
	EventDisputeResolved   Event = "dispute.resolved"
	EventDisputeRejected   Event = "dispute.rejected"
	EventBalanceUpdated    Event = "chain.balance_updated"
)

// Message is the payload published for an event. Kept flat so downstream
// consumers (mailers, webhooks) need no schema registry.
type Message struct {
	Event      Event          `json:"event"`
	ContractID string         `json:"contract_id,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Details    map[string]any `json:"details,omitempty"`
}

// Notifier publishes events fire-and-forget. Implementations must not let a
// delivery failure propagate to the caller as anything but an error value;
// callers ignore it by contract.
type Notifier interface {
	Publish(ctx context.Context, msg Message) error
}

// Noop discards all events. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Message) error { return nil }
