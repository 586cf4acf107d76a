package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/poyrazK/nameregistry/internal/core/domain"
	"github.com/poyrazK/nameregistry/internal/core/ports"
	"github.com/shopspring/decimal"
)

// ledgerLockKey is the advisory lock every writer takes first. Holding it for
// the life of the transaction serializes all ledger mutations.
const ledgerLockKey int64 = 0x6e616d65726567

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresRepository implements ports.LedgerRepository and ports.APIKeyRepository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates and returns a new PostgresRepository instance.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var (
	_ ports.LedgerRepository = (*PostgresRepository)(nil)
	_ ports.APIKeyRepository = (*PostgresRepository)(nil)
	_ ports.LedgerTx         = (*postgresTx)(nil)
)

func (r *PostgresRepository) GetRegistration(ctx context.Context, name string) (*domain.Registration, error) {
	return getRegistration(ctx, r.db, name)
}

func (r *PostgresRepository) ListOwnerNames(ctx context.Context, owner domain.Account) ([]string, error) {
	return listOwnerNames(ctx, r.db, owner)
}

func (r *PostgresRepository) GetSettings(ctx context.Context) (*domain.Settings, error) {
	return getSettings(ctx, r.db)
}

func (r *PostgresRepository) GetBalance(ctx context.Context, account domain.Account) (decimal.Decimal, error) {
	return getBalance(ctx, r.db, account)
}

func (r *PostgresRepository) ListEvents(ctx context.Context, afterSeq int64, limit int) ([]domain.Event, error) {
	return listEvents(ctx, r.db, afterSeq, limit)
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// RunInTx opens a transaction, takes the ledger advisory lock and runs fn.
// The transaction commits only if fn returns nil.
func (r *PostgresRepository) RunInTx(ctx context.Context, fn func(tx ports.LedgerTx) error) error {
	tx, errTx := r.db.BeginTx(ctx, nil)
	if errTx != nil {
		return fmt.Errorf("begin tx: %w", errTx)
	}
	defer func() {
		if errRollback := tx.Rollback(); errRollback != nil && !errors.Is(errRollback, sql.ErrTxDone) {
			log.Printf("failed to rollback transaction: %v", errRollback)
		}
	}()

	if _, errLock := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, ledgerLockKey); errLock != nil {
		return fmt.Errorf("acquire ledger lock: %w", errLock)
	}

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}

	if errCommit := tx.Commit(); errCommit != nil {
		return fmt.Errorf("commit tx: %w", errCommit)
	}
	return nil
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) GetRegistration(ctx context.Context, name string) (*domain.Registration, error) {
	return getRegistration(ctx, t.tx, name)
}

func (t *postgresTx) ListOwnerNames(ctx context.Context, owner domain.Account) ([]string, error) {
	return listOwnerNames(ctx, t.tx, owner)
}

func (t *postgresTx) GetSettings(ctx context.Context) (*domain.Settings, error) {
	return getSettings(ctx, t.tx)
}

func (t *postgresTx) GetBalance(ctx context.Context, account domain.Account) (decimal.Decimal, error) {
	return getBalance(ctx, t.tx, account)
}

func (t *postgresTx) ListEvents(ctx context.Context, afterSeq int64, limit int) ([]domain.Event, error) {
	return listEvents(ctx, t.tx, afterSeq, limit)
}

func (t *postgresTx) PutRegistration(ctx context.Context, reg *domain.Registration) error {
	query := `INSERT INTO registrations (name, owner, registered_at, expires_at) VALUES ($1, $2, $3, $4)
	          ON CONFLICT (name) DO UPDATE SET owner = EXCLUDED.owner, registered_at = EXCLUDED.registered_at, expires_at = EXCLUDED.expires_at`
	_, err := t.tx.ExecContext(ctx, query, reg.Name, string(reg.Owner), reg.RegisteredAt, reg.ExpiresAt)
	return err
}

func (t *postgresTx) DeleteRegistration(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM registrations WHERE name = $1`, name)
	return err
}

func (t *postgresTx) AppendOwnerName(ctx context.Context, owner domain.Account, name string) error {
	query := `INSERT INTO owner_names (owner, name) VALUES ($1, $2) ON CONFLICT (owner, name) DO NOTHING`
	_, err := t.tx.ExecContext(ctx, query, string(owner), name)
	return err
}

func (t *postgresTx) RemoveOwnerName(ctx context.Context, owner domain.Account, name string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM owner_names WHERE owner = $1 AND name = $2`, string(owner), name)
	return err
}

func (t *postgresTx) PutSettings(ctx context.Context, s *domain.Settings) error {
	query := `INSERT INTO ledger_settings (id, fee, paused, treasury, updated_at) VALUES (1, $1, $2, $3, $4)
	          ON CONFLICT (id) DO UPDATE SET fee = EXCLUDED.fee, paused = EXCLUDED.paused, treasury = EXCLUDED.treasury, updated_at = EXCLUDED.updated_at`
	_, err := t.tx.ExecContext(ctx, query, s.Fee, s.Paused, s.Treasury, s.UpdatedAt)
	return err
}

func (t *postgresTx) CreditAccount(ctx context.Context, account domain.Account, amount decimal.Decimal) error {
	query := `INSERT INTO account_balances (account, balance) VALUES ($1, $2)
	          ON CONFLICT (account) DO UPDATE SET balance = account_balances.balance + EXCLUDED.balance`
	_, err := t.tx.ExecContext(ctx, query, string(account), amount)
	return err
}

// AppendEvent stores the event and writes the assigned sequence back into it.
func (t *postgresTx) AppendEvent(ctx context.Context, event *domain.Event) error {
	payload, errJSON := json.Marshal(event)
	if errJSON != nil {
		return errJSON
	}
	query := `INSERT INTO ledger_events (id, type, name, payload, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING seq`
	return t.tx.QueryRowContext(ctx, query, event.ID, string(event.Type), event.Name, payload, event.OccurredAt).Scan(&event.Seq)
}

func getRegistration(ctx context.Context, q querier, name string) (*domain.Registration, error) {
	query := `SELECT name, owner, registered_at, expires_at FROM registrations WHERE name = $1`
	var reg domain.Registration
	var owner string
	errRow := q.QueryRowContext(ctx, query, name).Scan(&reg.Name, &owner, &reg.RegisteredAt, &reg.ExpiresAt)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	reg.Owner = domain.Account(owner)
	reg.RegisteredAt = reg.RegisteredAt.UTC()
	reg.ExpiresAt = reg.ExpiresAt.UTC()
	return &reg, nil
}

func listOwnerNames(ctx context.Context, q querier, owner domain.Account) ([]string, error) {
	rows, errQuery := q.QueryContext(ctx, `SELECT name FROM owner_names WHERE owner = $1 ORDER BY position`, string(owner))
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() {
		if errClose := rows.Close(); errClose != nil {
			log.Printf("failed to close rows: %v", errClose)
		}
	}()

	names := []string{}
	for rows.Next() {
		var name string
		if errScan := rows.Scan(&name); errScan != nil {
			return nil, errScan
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func getSettings(ctx context.Context, q querier) (*domain.Settings, error) {
	var s domain.Settings
	errRow := q.QueryRowContext(ctx, `SELECT fee, paused, treasury, updated_at FROM ledger_settings WHERE id = 1`).
		Scan(&s.Fee, &s.Paused, &s.Treasury, &s.UpdatedAt)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

func getBalance(ctx context.Context, q querier, account domain.Account) (decimal.Decimal, error) {
	var bal decimal.Decimal
	errRow := q.QueryRowContext(ctx, `SELECT balance FROM account_balances WHERE account = $1`, string(account)).Scan(&bal)
	if errors.Is(errRow, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if errRow != nil {
		return decimal.Zero, errRow
	}
	return bal, nil
}

func listEvents(ctx context.Context, q querier, afterSeq int64, limit int) ([]domain.Event, error) {
	rows, errQuery := q.QueryContext(ctx, `SELECT seq, payload FROM ledger_events WHERE seq > $1 ORDER BY seq LIMIT $2`, afterSeq, limit)
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() {
		if errClose := rows.Close(); errClose != nil {
			log.Printf("failed to close rows: %v", errClose)
		}
	}()

	events := []domain.Event{}
	for rows.Next() {
		var seq int64
		var payload []byte
		if errScan := rows.Scan(&seq, &payload); errScan != nil {
			return nil, errScan
		}
		var ev domain.Event
		if errJSON := json.Unmarshal(payload, &ev); errJSON != nil {
			return nil, fmt.Errorf("decode event %d: %w", seq, errJSON)
		}
		ev.Seq = seq
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *PostgresRepository) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	query := `SELECT id, account, name, key_hash, key_prefix, role, active, created_at, expires_at FROM api_keys WHERE key_hash = $1`
	k, errRow := scanAPIKey(r.db.QueryRowContext(ctx, query, keyHash))
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	return k, nil
}

func (r *PostgresRepository) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	query := `INSERT INTO api_keys (id, account, name, key_hash, key_prefix, role, active, created_at, expires_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query, key.ID, string(key.Account), key.Name, key.KeyHash, key.KeyPrefix,
		string(key.Role), key.Active, key.CreatedAt, key.ExpiresAt)
	return err
}

func (r *PostgresRepository) ListAPIKeys(ctx context.Context, account domain.Account) ([]domain.APIKey, error) {
	query := `SELECT id, account, name, key_hash, key_prefix, role, active, created_at, expires_at FROM api_keys
	          WHERE account = $1 ORDER BY created_at`
	rows, errQuery := r.db.QueryContext(ctx, query, string(account))
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() {
		if errClose := rows.Close(); errClose != nil {
			log.Printf("failed to close rows: %v", errClose)
		}
	}()

	var keys []domain.APIKey
	for rows.Next() {
		k, errScan := scanAPIKey(rows)
		if errScan != nil {
			return nil, errScan
		}
		keys = append(keys, *k)
	}
	return keys, rows.Err()
}

// DeleteAPIKey deactivates the key; rows are kept for audit.
func (r *PostgresRepository) DeleteAPIKey(ctx context.Context, account domain.Account, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET active = FALSE WHERE id = $1 AND account = $2`, id, string(account))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAPIKey(row rowScanner) (*domain.APIKey, error) {
	var k domain.APIKey
	var account, role string
	var expiresAt sql.NullTime
	if err := row.Scan(&k.ID, &account, &k.Name, &k.KeyHash, &k.KeyPrefix, &role, &k.Active, &k.CreatedAt, &expiresAt); err != nil {
		return nil, err
	}
	k.Account = domain.Account(account)
	k.Role = domain.Role(role)
	if expiresAt.Valid {
		t := expiresAt.Time
		k.ExpiresAt = &t
	}
	return &k, nil
}
