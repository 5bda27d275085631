package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pact/internal/contract/models"
	id "pact/pkg/domain"
	"pact/pkg/platform/sentinel"
)

func newStoredContract(t *testing.T, s *InMemoryStore) *models.Contract {
	t.Helper()
	c := &models.Contract{
		ID:    id.NewContractID(),
		Title: "Test",
		Parties: []models.Party{
			{Name: "A", PublicKey: id.PartyKey("key-a-000000000000000000000000000")},
			{Name: "B", PublicKey: id.PartyKey("key-b-000000000000000000000000000")},
		},
		Status:    models.StatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, s.Create(context.Background(), c))
	return c
}

func TestInMemoryStore_LoadUnknown(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Load(context.Background(), id.NewContractID())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStore_CreateThenLoad(t *testing.T) {
	s := NewInMemoryStore()
	c := newStoredContract(t, s)
	assert.Equal(t, int64(1), c.Version)

	got, err := s.Load(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Title, got.Title)
	assert.Equal(t, int64(1), got.Version)
}

func TestInMemoryStore_CreateDuplicate(t *testing.T) {
	s := NewInMemoryStore()
	c := newStoredContract(t, s)
	err := s.Create(context.Background(), c)
	assert.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestInMemoryStore_SaveBumpsVersion(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	c := newStoredContract(t, s)

	c.Parties[0].HasSigned = true
	require.NoError(t, s.Save(ctx, c))
	assert.Equal(t, int64(2), c.Version)

	got, err := s.Load(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.Parties[0].HasSigned)
}

func TestInMemoryStore_SaveStaleVersionConflicts(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	c := newStoredContract(t, s)

	stale, err := s.Load(ctx, c.ID)
	require.NoError(t, err)

	c.Parties[0].HasSigned = true
	require.NoError(t, s.Save(ctx, c))

	stale.Parties[1].HasSigned = true
	err = s.Save(ctx, stale)
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	got, err := s.Load(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.Parties[0].HasSigned, "winning write survives")
	assert.False(t, got.Parties[1].HasSigned, "losing write never lands")
}

func TestInMemoryStore_LoadReturnsCopy(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	c := newStoredContract(t, s)

	got, err := s.Load(ctx, c.ID)
	require.NoError(t, err)
	got.Parties[0].HasSigned = true
	got.Disputes = append(got.Disputes, models.Dispute{ID: id.NewDisputeID()})

	fresh, err := s.Load(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, fresh.Parties[0].HasSigned)
	assert.Empty(t, fresh.Disputes)
}

func TestInMemoryStore_List(t *testing.T) {
	s := NewInMemoryStore()
	first := newStoredContract(t, s)
	second := &models.Contract{
		ID:        id.NewContractID(),
		Title:     "Later",
		CreatedAt: first.CreatedAt.Add(time.Second),
	}
	require.NoError(t, s.Create(context.Background(), second))

	all, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)
}
