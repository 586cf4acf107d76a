// Package settlement moves value out of the ledger by crediting account balances.
package settlement

import (
	"context"
	"log/slog"

	"github.com/poyrazK/nameregistry/internal/core/domain"
	"github.com/poyrazK/nameregistry/internal/core/ports"
	"github.com/shopspring/decimal"
)

// CreditSettlement implements ports.Settlement. Refunds and payouts become
// credits on the recipient's balance, written through the caller's
// transaction so they commit or roll back with the operation.
type CreditSettlement struct {
	logger *slog.Logger
}

func NewCreditSettlement(logger *slog.Logger) *CreditSettlement {
	if logger == nil {
		logger = slog.Default()
	}
	return &CreditSettlement{logger: logger}
}

var _ ports.Settlement = (*CreditSettlement)(nil)

func (s *CreditSettlement) Refund(ctx context.Context, tx ports.LedgerTx, to domain.Account, amount decimal.Decimal) error {
	return s.credit(ctx, tx, "refund", to, amount)
}

func (s *CreditSettlement) Payout(ctx context.Context, tx ports.LedgerTx, to domain.Account, amount decimal.Decimal) error {
	return s.credit(ctx, tx, "payout", to, amount)
}

func (s *CreditSettlement) credit(ctx context.Context, tx ports.LedgerTx, kind string, to domain.Account, amount decimal.Decimal) error {
	if err := domain.ValidateAccount(to); err != nil {
		return domain.WrapError(err, domain.CodeSettlementFailed, kind+" recipient rejected")
	}
	if amount.IsNegative() {
		return domain.NewError(domain.CodeSettlementFailed, "%s amount %s is negative", kind, amount)
	}
	if amount.IsZero() {
		return nil
	}
	if err := tx.CreditAccount(ctx, to, amount); err != nil {
		return domain.WrapError(err, domain.CodeSettlementFailed, kind+" credit failed")
	}
	s.logger.Debug("settlement credited", "kind", kind, "account", to, "amount", amount.String())
	return nil
}
