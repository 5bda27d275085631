package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"pact/internal/contract/models"
	id "pact/pkg/domain"
	"pact/pkg/platform/sentinel"
	"pact/pkg/platform/tx"
)

// PostgresStore persists contract aggregates as jsonb documents with a
// dedicated version column for the optimistic concurrency check.
type PostgresStore struct {
	db *sql.DB
}

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q returns the transaction carried in ctx when one is present, so callers
// can group store operations atomically, and the pool otherwise.
func (s *PostgresStore) q(ctx context.Context) querier {
	if txn, ok := tx.From(ctx); ok {
		return txn
	}
	return s.db
}

// NewPostgres constructs a PostgreSQL-backed contract store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema holds the DDL the store expects. Applied at startup and by the test
// helpers; the store itself never runs it.
const Schema = `
CREATE TABLE IF NOT EXISTS contracts (
	id         UUID PRIMARY KEY,
	document   JSONB NOT NULL,
	version    BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

func (s *PostgresStore) Create(ctx context.Context, contract *models.Contract) error {
	contract.Version = 1
	doc, err := json.Marshal(contract)
	if err != nil {
		return fmt.Errorf("marshal contract: %w", err)
	}
	query := `
		INSERT INTO contracts (id, document, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := s.q(ctx).ExecContext(ctx, query,
		contract.ID.String(), doc, contract.Version, contract.CreatedAt, contract.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create contract: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create contract: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, contractID id.ContractID) (*models.Contract, error) {
	var (
		doc     []byte
		version int64
	)
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT document, version FROM contracts WHERE id = $1`,
		contractID.String()).Scan(&doc, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load contract: %w", err)
	}
	var contract models.Contract
	if err := json.Unmarshal(doc, &contract); err != nil {
		return nil, fmt.Errorf("unmarshal contract: %w", err)
	}
	// The column is authoritative; the document copy may lag one write.
	contract.Version = version
	return &contract, nil
}

func (s *PostgresStore) Save(ctx context.Context, contract *models.Contract) error {
	next := contract.Version + 1
	doc, err := marshalAtVersion(contract, next)
	if err != nil {
		return err
	}
	query := `
		UPDATE contracts
		SET document = $2, version = $3, updated_at = $4
		WHERE id = $1 AND version = $5
	`
	res, err := s.q(ctx).ExecContext(ctx, query,
		contract.ID.String(), doc, next, contract.UpdatedAt, contract.Version)
	if err != nil {
		return fmt.Errorf("save contract: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save contract: %w", err)
	}
	if affected == 0 {
		return s.classifySaveMiss(ctx, contract.ID)
	}
	contract.Version = next
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Contract, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT document, version FROM contracts ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	defer rows.Close()

	var out []*models.Contract
	for rows.Next() {
		var (
			doc     []byte
			version int64
		)
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, fmt.Errorf("scan contract: %w", err)
		}
		var contract models.Contract
		if err := json.Unmarshal(doc, &contract); err != nil {
			return nil, fmt.Errorf("unmarshal contract: %w", err)
		}
		contract.Version = version
		out = append(out, &contract)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	return out, nil
}

// classifySaveMiss distinguishes a version race from a missing row.
func (s *PostgresStore) classifySaveMiss(ctx context.Context, contractID id.ContractID) error {
	var exists bool
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM contracts WHERE id = $1)`,
		contractID.String()).Scan(&exists)
	if err != nil {
		return fmt.Errorf("save contract: %w", err)
	}
	if exists {
		return sentinel.ErrConflict
	}
	return sentinel.ErrNotFound
}

func marshalAtVersion(contract *models.Contract, version int64) ([]byte, error) {
	prev := contract.Version
	contract.Version = version
	doc, err := json.Marshal(contract)
	contract.Version = prev
	if err != nil {
		return nil, fmt.Errorf("marshal contract: %w", err)
	}
	return doc, nil
}
