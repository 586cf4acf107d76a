package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/poyrazK/nameregistry/internal/core/domain"
	"github.com/poyrazK/nameregistry/internal/core/ports"
	"github.com/shopspring/decimal"
)

func TestPostgresRepository_Unit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("GetRegistration", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"name", "owner", "registered_at", "expires_at"}).
			AddRow("alice", "acct-1", now, now.Add(time.Hour))

		mock.ExpectQuery(`SELECT name, owner, registered_at, expires_at FROM registrations WHERE name = \$1`).
			WithArgs("alice").
			WillReturnRows(rows)

		reg, err := repo.GetRegistration(ctx, "alice")
		if err != nil {
			t.Fatalf("GetRegistration failed: %v", err)
		}
		if reg == nil || reg.Owner != "acct-1" || !reg.ExpiresAt.Equal(now.Add(time.Hour)) {
			t.Errorf("Unexpected registration: %+v", reg)
		}
	})

	t.Run("GetRegistration_NotFound", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM registrations WHERE name = \$1`).
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"name", "owner", "registered_at", "expires_at"}))

		reg, err := repo.GetRegistration(ctx, "ghost")
		if err != nil {
			t.Fatalf("GetRegistration failed: %v", err)
		}
		if reg != nil {
			t.Errorf("Expected nil for missing registration, got %+v", reg)
		}
	})

	t.Run("ListOwnerNames", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"name"}).AddRow("alice").AddRow("bob")
		mock.ExpectQuery(`SELECT name FROM owner_names WHERE owner = \$1 ORDER BY position`).
			WithArgs("acct-1").
			WillReturnRows(rows)

		names, err := repo.ListOwnerNames(ctx, "acct-1")
		if err != nil {
			t.Fatalf("ListOwnerNames failed: %v", err)
		}
		if len(names) != 2 || names[0] != "alice" || names[1] != "bob" {
			t.Errorf("Unexpected names: %v", names)
		}
	})

	t.Run("GetSettings_Absent", func(t *testing.T) {
		mock.ExpectQuery(`SELECT fee, paused, treasury, updated_at FROM ledger_settings WHERE id = 1`).
			WillReturnRows(sqlmock.NewRows([]string{"fee", "paused", "treasury", "updated_at"}))

		s, err := repo.GetSettings(ctx)
		if err != nil {
			t.Fatalf("GetSettings failed: %v", err)
		}
		if s != nil {
			t.Errorf("Expected nil settings, got %+v", s)
		}
	})

	t.Run("GetSettings", func(t *testing.T) {
		mock.ExpectQuery(`SELECT fee, paused, treasury, updated_at FROM ledger_settings WHERE id = 1`).
			WillReturnRows(sqlmock.NewRows([]string{"fee", "paused", "treasury", "updated_at"}).
				AddRow("0.010000000000000000", true, "1.5", now))

		s, err := repo.GetSettings(ctx)
		if err != nil {
			t.Fatalf("GetSettings failed: %v", err)
		}
		if !s.Fee.Equal(decimal.RequireFromString("0.01")) || !s.Paused || !s.Treasury.Equal(decimal.RequireFromString("1.5")) {
			t.Errorf("Unexpected settings: %+v", s)
		}
	})

	t.Run("GetBalance_Default", func(t *testing.T) {
		mock.ExpectQuery(`SELECT balance FROM account_balances WHERE account = \$1`).
			WithArgs("acct-9").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}))

		bal, err := repo.GetBalance(ctx, "acct-9")
		if err != nil {
			t.Fatalf("GetBalance failed: %v", err)
		}
		if !bal.IsZero() {
			t.Errorf("Expected zero balance, got %s", bal)
		}
	})

	t.Run("ListEvents", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"seq", "payload"}).
			AddRow(int64(7), []byte(`{"id":"e7","type":"NameReleased","name":"alice","owner":"acct-1","occurred_at":"2026-01-01T00:00:00Z"}`))
		mock.ExpectQuery(`SELECT seq, payload FROM ledger_events WHERE seq > \$1 ORDER BY seq LIMIT \$2`).
			WithArgs(int64(6), 10).
			WillReturnRows(rows)

		events, err := repo.ListEvents(ctx, 6, 10)
		if err != nil {
			t.Fatalf("ListEvents failed: %v", err)
		}
		if len(events) != 1 || events[0].Seq != 7 || events[0].Type != domain.EventNameReleased {
			t.Errorf("Unexpected events: %+v", events)
		}
	})

	t.Run("RunInTx_Commit", func(t *testing.T) {
		reg := &domain.Registration{Name: "alice", Owner: "acct-1", RegisteredAt: now, ExpiresAt: now.Add(time.Hour)}
		ev := domain.NameRegistered("alice", "acct-1", reg.ExpiresAt, now)
		ev.ID = "3f0c6a9e-0000-4000-8000-000000000001"

		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).
			WithArgs(ledgerLockKey).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`INSERT INTO registrations`).
			WithArgs("alice", "acct-1", reg.RegisteredAt, reg.ExpiresAt).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`INSERT INTO owner_names (.+) ON CONFLICT \(owner, name\) DO NOTHING`).
			WithArgs("acct-1", "alice").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`INSERT INTO account_balances`).
			WithArgs("acct-1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery(`INSERT INTO ledger_events (.+) RETURNING seq`).
			WithArgs(ev.ID, "NameRegistered", "alice", sqlmock.AnyArg(), now).
			WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(42)))
		mock.ExpectCommit()

		err := repo.RunInTx(ctx, func(tx ports.LedgerTx) error {
			if err := tx.PutRegistration(ctx, reg); err != nil {
				return err
			}
			if err := tx.AppendOwnerName(ctx, "acct-1", "alice"); err != nil {
				return err
			}
			if err := tx.CreditAccount(ctx, "acct-1", decimal.RequireFromString("0.5")); err != nil {
				return err
			}
			return tx.AppendEvent(ctx, &ev)
		})
		if err != nil {
			t.Fatalf("RunInTx failed: %v", err)
		}
		if ev.Seq != 42 {
			t.Errorf("Expected seq 42 written back, got %d", ev.Seq)
		}
	})

	t.Run("RunInTx_RollbackOnError", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`DELETE FROM registrations WHERE name = \$1`).
			WithArgs("alice").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectRollback()

		boom := errors.New("settlement offline")
		err := repo.RunInTx(ctx, func(tx ports.LedgerTx) error {
			if err := tx.DeleteRegistration(ctx, "alice"); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("Expected fn error to propagate, got %v", err)
		}
	})

	t.Run("RunInTx_LockFailure", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnError(errors.New("lock timeout"))
		mock.ExpectRollback()

		called := false
		err := repo.RunInTx(ctx, func(tx ports.LedgerTx) error {
			called = true
			return nil
		})
		if err == nil || called {
			t.Errorf("Expected lock failure to abort before fn, err=%v called=%v", err, called)
		}
	})

	t.Run("PutSettings", func(t *testing.T) {
		settings := &domain.Settings{Fee: decimal.RequireFromString("0.02"), Treasury: decimal.Zero, UpdatedAt: now}
		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`INSERT INTO ledger_settings (.+) ON CONFLICT \(id\) DO UPDATE`).
			WithArgs(settings.Fee, false, settings.Treasury, now).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`DELETE FROM owner_names WHERE owner = \$1 AND name = \$2`).
			WithArgs("acct-1", "alice").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.RunInTx(ctx, func(tx ports.LedgerTx) error {
			if err := tx.PutSettings(ctx, settings); err != nil {
				return err
			}
			return tx.RemoveOwnerName(ctx, "acct-1", "alice")
		})
		if err != nil {
			t.Fatalf("RunInTx failed: %v", err)
		}
	})

	t.Run("GetAPIKeyByHash", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "account", "name", "key_hash", "key_prefix", "role", "active", "created_at", "expires_at"}).
			AddRow("k1", "acct-1", "wallet", "hash", "nr_abcde", "admin", true, now, nil)
		mock.ExpectQuery(`SELECT (.+) FROM api_keys WHERE key_hash = \$1`).
			WithArgs("hash").
			WillReturnRows(rows)

		key, err := repo.GetAPIKeyByHash(ctx, "hash")
		if err != nil {
			t.Fatalf("GetAPIKeyByHash failed: %v", err)
		}
		if key == nil || key.Role != domain.RoleAdmin || key.Account != "acct-1" || key.ExpiresAt != nil {
			t.Errorf("Unexpected key: %+v", key)
		}
	})

	t.Run("CreateAPIKey", func(t *testing.T) {
		key := &domain.APIKey{ID: "k2", Account: "acct-2", Name: "cli", KeyHash: "h2", KeyPrefix: "nr_12345", Role: domain.RoleUser, Active: true, CreatedAt: now}
		mock.ExpectExec(`INSERT INTO api_keys`).
			WithArgs("k2", "acct-2", "cli", "h2", "nr_12345", "user", true, now, nil).
			WillReturnResult(sqlmock.NewResult(1, 1))

		if err := repo.CreateAPIKey(ctx, key); err != nil {
			t.Errorf("CreateAPIKey failed: %v", err)
		}
	})

	t.Run("DeleteAPIKey", func(t *testing.T) {
		mock.ExpectExec(`UPDATE api_keys SET active = FALSE WHERE id = \$1 AND account = \$2`).
			WithArgs("k2", "acct-2").
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := repo.DeleteAPIKey(ctx, "acct-2", "k2"); err != nil {
			t.Errorf("DeleteAPIKey failed: %v", err)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"postgres://u:p@localhost:5432/db?sslmode=disable", "pgx5://u:p@localhost:5432/db?sslmode=disable", false},
		{"postgresql://localhost/db", "pgx5://localhost/db", false},
		{"mysql://localhost/db", "", true},
	}
	for _, tt := range tests {
		got, err := migrateURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("migrateURL(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("migrateURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
