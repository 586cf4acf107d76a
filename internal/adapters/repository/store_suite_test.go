package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/poyrazK/nameregistry/internal/core/domain"
	"github.com/poyrazK/nameregistry/internal/core/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

// ledgerStoreSuite exercises the LedgerRepository contract. It runs against
// the memory store in unit tests and against Postgres in integration tests.
type ledgerStoreSuite struct {
	suite.Suite
	newRepo func() ports.LedgerRepository
	repo    ports.LedgerRepository
	ctx     context.Context
}

func (s *ledgerStoreSuite) SetupTest() {
	s.repo = s.newRepo()
	s.ctx = context.Background()
}

func testTime() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func newTestEvent(ev domain.Event) *domain.Event {
	ev.ID = uuid.New().String()
	return &ev
}

func (s *ledgerStoreSuite) TestRegistrationRoundTrip() {
	now := testTime()
	reg := &domain.Registration{Name: "alice", Owner: "acct-1", RegisteredAt: now, ExpiresAt: now.Add(domain.DefaultRegistrationDuration)}

	s.Require().NoError(s.repo.RunInTx(s.ctx, func(tx ports.LedgerTx) error {
		return tx.PutRegistration(s.ctx, reg)
	}))

	got, err := s.repo.GetRegistration(s.ctx, "alice")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(reg.Owner, got.Owner)
	s.True(reg.RegisteredAt.Equal(got.RegisteredAt))
	s.True(reg.ExpiresAt.Equal(got.ExpiresAt))

	missing, err := s.repo.GetRegistration(s.ctx, "ALICE")
	s.Require().NoError(err)
	s.Nil(missing, "names are case-sensitive")

	s.Require().NoError(s.repo.RunInTx(s.ctx, func(tx ports.LedgerTx) error {
		return tx.DeleteRegistration(s.ctx, "alice")
	}))
	got, err = s.repo.GetRegistration(s.ctx, "alice")
	s.Require().NoError(err)
	s.Nil(got)
}

func (s *ledgerStoreSuite) TestTxReadsOwnWrites() {
	now := testTime()
	s.Require().NoError(s.repo.RunInTx(s.ctx, func(tx ports.LedgerTx) error {
		s.Require().NoError(tx.PutRegistration(s.ctx, &domain.Registration{Name: "bob", Owner: "acct-2", RegisteredAt: now, ExpiresAt: now}))
		got, err := tx.GetRegistration(s.ctx, "bob")
		s.Require().NoError(err)
		s.Require().NotNil(got)
		s.Equal(domain.Account("acct-2"), got.Owner)

		s.Require().NoError(tx.DeleteRegistration(s.ctx, "bob"))
		got, err = tx.GetRegistration(s.ctx, "bob")
		s.Require().NoError(err)
		s.Nil(got)
		return nil
	}))
}

func (s *ledgerStoreSuite) TestRollbackDiscardsEveryWrite() {
	now := testTime()
	boom := errors.New("boom")

	err := s.repo.RunInTx(s.ctx, func(tx ports.LedgerTx) error {
		s.Require().NoError(tx.PutRegistration(s.ctx, &domain.Registration{Name: "carol", Owner: "acct-3", RegisteredAt: now, ExpiresAt: now}))
		s.Require().NoError(tx.AppendOwnerName(s.ctx, "acct-3", "carol"))
		s.Require().NoError(tx.PutSettings(s.ctx, &domain.Settings{Fee: decimal.NewFromInt(5), Treasury: decimal.Zero, UpdatedAt: now}))
		s.Require().NoError(tx.CreditAccount(s.ctx, "acct-3", decimal.NewFromInt(1)))
		s.Require().NoError(tx.AppendEvent(s.ctx, newTestEvent(domain.NameRegistered("carol", "acct-3", now, now))))
		return boom
	})
	s.Require().ErrorIs(err, boom)

	reg, err := s.repo.GetRegistration(s.ctx, "carol")
	s.Require().NoError(err)
	s.Nil(reg)

	names, err := s.repo.ListOwnerNames(s.ctx, "acct-3")
	s.Require().NoError(err)
	s.Empty(names)

	settings, err := s.repo.GetSettings(s.ctx)
	s.Require().NoError(err)
	s.Nil(settings)

	bal, err := s.repo.GetBalance(s.ctx, "acct-3")
	s.Require().NoError(err)
	s.True(bal.IsZero())

	events, err := s.repo.ListEvents(s.ctx, 0, 10)
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *ledgerStoreSuite) TestOwnerIndexKeepsInsertionOrder() {
	s.Require().NoError(s.repo.RunInTx(s.ctx, func(tx ports.LedgerTx) error {
		for _, n := range []string{"aaa", "bbb", "ccc"} {
			s.Require().NoError(tx.AppendOwnerName(s.ctx, "acct-1", n))
		}
		s.Require().NoError(tx.AppendOwnerName(s.ctx, "acct-1", "bbb"))
		return nil
	}))
	names, err := s.repo.ListOwnerNames(s.ctx, "acct-1")
	s.Require().NoError(err)
	s.Equal([]string{"aaa", "bbb", "ccc"}, names)

	s.Require().NoError(s.repo.RunInTx(s.ctx, func(tx ports.LedgerTx) error {
		s.Require().NoError(tx.RemoveOwnerName(s.ctx, "acct-1", "aaa"))
		s.Require().NoError(tx.RemoveOwnerName(s.ctx, "acct-1", "zzz"))
		return tx.AppendOwnerName(s.ctx, "acct-1", "aaa")
	}))
	names, err = s.repo.ListOwnerNames(s.ctx, "acct-1")
	s.Require().NoError(err)
	s.Equal([]string{"bbb", "ccc", "aaa"}, names)

	other, err := s.repo.ListOwnerNames(s.ctx, "nobody")
	s.Require().NoError(err)
	s.Empty(other)
}

func (s *ledgerStoreSuite) TestSettingsAndBalances() {
	now := testTime()
	settings, err := s.repo.GetSettings(s.ctx)
	s.Require().NoError(err)
	s.Nil(settings)

	s.Require().NoError(s.repo.RunInTx(s.ctx, func(tx ports.LedgerTx) error {
		s.Require().NoError(tx.PutSettings(s.ctx, &domain.Settings{Fee: decimal.RequireFromString("0.01"), Paused: true, Treasury: decimal.RequireFromString("0.02"), UpdatedAt: now}))
		s.Require().NoError(tx.CreditAccount(s.ctx, "acct-1", decimal.RequireFromString("0.5")))
		return tx.CreditAccount(s.ctx, "acct-1", decimal.RequireFromString("0.25"))
	}))

	settings, err = s.repo.GetSettings(s.ctx)
	s.Require().NoError(err)
	s.Require().NotNil(settings)
	s.True(settings.Fee.Equal(decimal.RequireFromString("0.01")))
	s.True(settings.Treasury.Equal(decimal.RequireFromString("0.02")))
	s.True(settings.Paused)

	bal, err := s.repo.GetBalance(s.ctx, "acct-1")
	s.Require().NoError(err)
	s.True(bal.Equal(decimal.RequireFromString("0.75")), "got %s", bal)
}

func (s *ledgerStoreSuite) TestEventsAreSequencedInCommitOrder() {
	now := testTime()
	s.Require().NoError(s.repo.RunInTx(s.ctx, func(tx ports.LedgerTx) error {
		first := newTestEvent(domain.NameRegistered("alice", "acct-1", now, now))
		s.Require().NoError(tx.AppendEvent(s.ctx, first))
		s.Equal(int64(1), first.Seq)
		return tx.AppendEvent(s.ctx, newTestEvent(domain.NameRenewed("alice", "acct-1", now, now)))
	}))
	s.Require().NoError(s.repo.RunInTx(s.ctx, func(tx ports.LedgerTx) error {
		return tx.AppendEvent(s.ctx, newTestEvent(domain.NameReleased("alice", "acct-1", now)))
	}))

	all, err := s.repo.ListEvents(s.ctx, 0, 10)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	for i, ev := range all {
		s.Equal(int64(i+1), ev.Seq)
	}
	s.Equal(domain.EventNameReleased, all[2].Type)

	page, err := s.repo.ListEvents(s.ctx, 1, 1)
	s.Require().NoError(err)
	s.Require().Len(page, 1)
	s.Equal(domain.EventNameRenewed, page[0].Type)

	tail, err := s.repo.ListEvents(s.ctx, 3, 10)
	s.Require().NoError(err)
	s.Empty(tail)
}

func (s *ledgerStoreSuite) TestConcurrentTransactionsSerialize() {
	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.repo.RunInTx(s.ctx, func(tx ports.LedgerTx) error {
				settings, err := tx.GetSettings(s.ctx)
				if err != nil {
					return err
				}
				if settings == nil {
					settings = &domain.Settings{Fee: decimal.Zero, Treasury: decimal.Zero, UpdatedAt: testTime()}
				}
				settings.Treasury = settings.Treasury.Add(decimal.NewFromInt(1))
				return tx.PutSettings(s.ctx, settings)
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	settings, err := s.repo.GetSettings(s.ctx)
	s.Require().NoError(err)
	s.Require().NotNil(settings)
	s.True(settings.Treasury.Equal(decimal.NewFromInt(workers)), "lost update: treasury %s", settings.Treasury)
}
