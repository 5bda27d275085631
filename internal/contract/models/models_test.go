package models

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "pact/pkg/domain"
)

func testContract(t *testing.T, parties int) *Contract {
	t.Helper()
	c := &Contract{
		ID:        id.NewContractID(),
		Title:     "Test Agreement",
		Activated: true,
		CreatedAt: time.Now(),
	}
	for i := 0; i < parties; i++ {
		c.Parties = append(c.Parties, Party{
			Name:      fmt.Sprintf("Party %d", i),
			Email:     fmt.Sprintf("party%d@example.com", i),
			PublicKey: id.PartyKey(fmt.Sprintf("key-%02d-%030d", i, i)),
		})
	}
	c.Refresh(time.Now())
	return c
}

// fully_signed holds if and only if every party has signed, regardless of
// the order signatures arrive in.
func TestDeriveStatus_FullySignedIffAllSigned(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	now := time.Now()

	for trial := 0; trial < 50; trial++ {
		n := 2 + rng.Intn(9)
		c := testContract(t, n)

		order := rng.Perm(n)
		for step, idx := range order {
			c.Parties[idx].HasSigned = true
			c.Refresh(now)

			if step < n-1 {
				assert.Equal(t, StatusPartiallySigned, c.Status)
				assert.False(t, c.IsFullySigned())
			} else {
				assert.Equal(t, StatusFullySigned, c.Status)
				assert.True(t, c.IsFullySigned())
			}
		}
	}
}

func TestDeriveStatus_Precedence(t *testing.T) {
	now := time.Now()

	t.Run("cancellation wins over everything", func(t *testing.T) {
		c := testContract(t, 2)
		c.Parties[0].HasSigned = true
		c.Disputes = append(c.Disputes, Dispute{ID: id.NewDisputeID(), Status: DisputeOpen})
		c.Cancelled = true
		assert.Equal(t, StatusCancelled, c.DeriveStatus(now))
	})

	t.Run("open dispute overrides signature state", func(t *testing.T) {
		c := testContract(t, 2)
		c.Parties[0].HasSigned = true
		c.Parties[1].HasSigned = true
		c.Disputes = append(c.Disputes, Dispute{ID: id.NewDisputeID(), Status: DisputeOpen})
		assert.Equal(t, StatusDisputed, c.DeriveStatus(now))
	})

	t.Run("all disputes closed yields dispute_resolved, never the prior state", func(t *testing.T) {
		c := testContract(t, 2)
		c.Parties[0].HasSigned = true
		c.Disputes = append(c.Disputes, Dispute{ID: id.NewDisputeID(), Status: DisputeResolved})
		assert.Equal(t, StatusDisputeResolved, c.DeriveStatus(now))
	})

	t.Run("under review still counts as open for contract status", func(t *testing.T) {
		c := testContract(t, 2)
		c.Disputes = append(c.Disputes, Dispute{ID: id.NewDisputeID(), Status: DisputeUnderReview})
		assert.Equal(t, StatusDisputed, c.DeriveStatus(now))
	})

	t.Run("expiry applies only to activated unsigned contracts", func(t *testing.T) {
		past := now.Add(-time.Hour)
		c := testContract(t, 2)
		c.ExpiryDate = &past
		assert.Equal(t, StatusExpired, c.DeriveStatus(now))

		c.Parties[0].HasSigned = true
		c.Parties[1].HasSigned = true
		assert.Equal(t, StatusFullySigned, c.DeriveStatus(now), "a fully signed contract does not expire")
	})

	t.Run("not yet activated is pending", func(t *testing.T) {
		c := testContract(t, 2)
		c.Activated = false
		assert.Equal(t, StatusPending, c.DeriveStatus(now))
	})
}

func TestProgress(t *testing.T) {
	c := testContract(t, 2)
	assert.Equal(t, SigningProgress{Signed: 0, Total: 2, Percentage: 0}, c.Progress())

	c.Parties[0].HasSigned = true
	assert.Equal(t, SigningProgress{Signed: 1, Total: 2, Percentage: 50}, c.Progress())

	c.Parties[1].HasSigned = true
	assert.Equal(t, SigningProgress{Signed: 2, Total: 2, Percentage: 100}, c.Progress())
}

func TestProgress_Rounding(t *testing.T) {
	c := testContract(t, 3)
	c.Parties[0].HasSigned = true
	assert.Equal(t, 33, c.Progress().Percentage)

	c.Parties[1].HasSigned = true
	assert.Equal(t, 67, c.Progress().Percentage)
}

func TestFindParty(t *testing.T) {
	c := testContract(t, 2)
	key := c.Parties[1].PublicKey

	p := c.FindParty(key)
	require.NotNil(t, p)
	assert.Equal(t, "Party 1", p.Name)

	assert.Nil(t, c.FindParty(id.PartyKey("unknown-key-00000000000000000000")))
}

func TestIsMediator(t *testing.T) {
	c := testContract(t, 2)
	medKey := id.PartyKey("mediator-key-0000000000000000000")
	assert.False(t, c.IsMediator(medKey))

	c.UseMediator = true
	c.Mediator = &Mediator{Name: "Med", Email: "med@example.com", PublicKey: medKey}
	assert.True(t, c.IsMediator(medKey))
	assert.False(t, c.IsMediator(c.Parties[0].PublicKey))
}

func TestAudit_AppendOnly(t *testing.T) {
	c := testContract(t, 2)
	now := time.Now()
	c.Audit("contract_activated", "system", now, map[string]any{"previous": "pending"})
	c.Audit("contract_signed", "key-a", now, nil)

	require.Len(t, c.AuditLog, 2)
	assert.Equal(t, "contract_activated", c.AuditLog[0].Action)
	assert.Equal(t, "contract_signed", c.AuditLog[1].Action)
}

func TestCreateContractRequest_Validate(t *testing.T) {
	valid := func() CreateContractRequest {
		return CreateContractRequest{
			Title:         "Agreement",
			AgreementText: "terms",
			Parties: []PartyInput{
				{Name: "A", Email: "a@example.com", PublicKey: "7nYabs9dUhvxYwdTnrWVBL9MYviKSfrEbdWCUbcaWkJh"},
				{Name: "B", Email: "b@example.com", PublicKey: "4rL4RCWHz3iNCdCaveD8KcHfV9YWGsqSHFPo7X2zBNwa"},
			},
		}
	}

	t.Run("accepts valid request", func(t *testing.T) {
		req := valid()
		assert.NoError(t, req.Validate())
	})

	t.Run("rejects single party", func(t *testing.T) {
		req := valid()
		req.Parties = req.Parties[:1]
		assert.Error(t, req.Validate())
	})

	t.Run("rejects duplicate keys", func(t *testing.T) {
		req := valid()
		req.Parties[1].PublicKey = req.Parties[0].PublicKey
		assert.Error(t, req.Validate())
	})

	t.Run("rejects missing mediator when requested", func(t *testing.T) {
		req := valid()
		req.UseMediator = true
		assert.Error(t, req.Validate())
	})
}
