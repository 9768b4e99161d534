package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/cryptosim/trading-sagas/internal/api-gateway/core/domain/entity"
	"github.com/cryptosim/trading-sagas/internal/pkg/errs"
)

// --- Price_Lookup_Step (buy) ---

// buyPriceLookupStep fetches the current price and derives the trade cost:
// totalCost = amount * price, fee = totalCost * feeRate,
// finalCost = totalCost + fee. Read-only, nothing to compensate.
type buyPriceLookupStep struct {
	deps  Deps
	rules Rules
	st    *BuyState
}

func (s *buyPriceLookupStep) Name() string { return "Price_Lookup_Step" }

func (s *buyPriceLookupStep) Execute(ctx context.Context) error {
	quote, err := s.deps.Market.GetPrice(ctx, s.st.CoinID)
	if err != nil {
		return err
	}
	s.st.Quote = quote

	s.st.TotalCost = s.st.Amount.Mul(quote.Price)
	s.st.Fee = s.st.TotalCost.Mul(s.rules.FeeRate)
	s.st.FinalCost = s.st.TotalCost.Add(s.st.Fee)

	if s.st.TotalCost.LessThan(s.rules.MinTradeUSD) {
		return errs.New(errs.CodeBelowMinimum,
			"trade value $%s is below the $%s minimum",
			s.st.TotalCost.StringFixed(2), s.rules.MinTradeUSD.StringFixed(2))
	}
	return nil
}

func (s *buyPriceLookupStep) Compensate(ctx context.Context) error { return nil }

// --- Balance_Check_Step (buy) ---

type buyBalanceCheckStep struct {
	deps Deps
	st   *BuyState
}

func (s *buyBalanceCheckStep) Name() string { return "Balance_Check_Step" }

func (s *buyBalanceCheckStep) Execute(ctx context.Context) error {
	balance, err := s.deps.User.GetBalance(ctx, s.st.UserID)
	if err != nil {
		return err
	}
	s.st.BalanceBefore = balance

	if balance.LessThan(s.st.FinalCost) {
		return errs.New(errs.CodeInsufficientBalance,
			"balance $%s cannot cover cost $%s (incl. fee)",
			balance.StringFixed(2), s.st.FinalCost.StringFixed(2))
	}
	return nil
}

func (s *buyBalanceCheckStep) Compensate(ctx context.Context) error { return nil }

// --- Balance_Debit_Step ---

// buyBalanceDebitStep is the first mutating step. Its compensation refunds
// the debit, and a failed refund means the user's money is gone without a
// trade: that is the critical inconsistency the saga log exists for.
type buyBalanceDebitStep struct {
	deps Deps
	st   *BuyState
}

func (s *buyBalanceDebitStep) Name() string { return "Balance_Debit_Step" }

func (s *buyBalanceDebitStep) Execute(ctx context.Context) error {
	newBalance, err := s.deps.User.ApplyBalanceDelta(ctx, s.st.UserID,
		s.st.FinalCost.Neg(), "trade",
		fmt.Sprintf("buy %s %s", s.st.Amount, s.st.Symbol))
	if err != nil {
		return err
	}
	s.st.BalanceMutated = true
	s.st.BalanceDelta = s.st.FinalCost
	s.st.BalanceAfter = newBalance
	return nil
}

func (s *buyBalanceDebitStep) Compensate(ctx context.Context) error {
	if !s.st.BalanceMutated {
		return nil
	}
	_, err := s.deps.User.ApplyBalanceDelta(ctx, s.st.UserID,
		s.st.BalanceDelta, "rollback",
		fmt.Sprintf("refund failed buy of %s %s", s.st.Amount, s.st.Symbol))
	return err
}

func (s *buyBalanceDebitStep) Mutated() bool { return s.st.BalanceMutated }

func (s *buyBalanceDebitStep) CompensationCritical() bool { return true }

// --- Holding_Add_Step ---

type buyHoldingAddStep struct {
	deps Deps
	st   *BuyState
}

func (s *buyHoldingAddStep) Name() string { return "Holding_Add_Step" }

func (s *buyHoldingAddStep) Execute(ctx context.Context) error {
	err := s.deps.Portfolio.AddHolding(ctx, s.st.UserID, entity.AddHolding{
		Symbol:   s.st.Symbol,
		CoinID:   s.st.CoinID,
		Name:     s.st.Quote.Name,
		Amount:   s.st.Amount,
		BuyPrice: s.st.Quote.Price,
	})
	if err != nil {
		return err
	}
	s.st.HoldingMutated = true
	return nil
}

func (s *buyHoldingAddStep) Compensate(ctx context.Context) error {
	if !s.st.HoldingMutated {
		return nil
	}
	return s.deps.Portfolio.ReduceHolding(ctx, s.st.UserID, s.st.Symbol, s.st.Amount)
}

func (s *buyHoldingAddStep) Mutated() bool { return s.st.HoldingMutated }

// --- Trade_Record_Step (buy) ---

// buyTradeRecordStep creates the immutable trade record. It is the last step,
// so it has no compensation; if it fails, the preceding mutations roll back
// and no trade exists.
type buyTradeRecordStep struct {
	deps Deps
	st   *BuyState
}

func (s *buyTradeRecordStep) Name() string { return "Trade_Record_Step" }

func (s *buyTradeRecordStep) Execute(ctx context.Context) error {
	created, err := s.deps.Trades.CreateTrade(ctx, &entity.Trade{
		UserID:        s.st.UserID,
		Type:          entity.TradeTypeBuy,
		Symbol:        s.st.Symbol,
		Amount:        s.st.Amount,
		Price:         s.st.Quote.Price,
		TotalCost:     s.st.TotalCost,
		Fee:           s.st.Fee,
		BalanceBefore: s.st.BalanceBefore,
		BalanceAfter:  s.st.BalanceAfter,
		ExecutedAt:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	s.st.TradeRecorded = true
	s.st.TradeID = created.ID
	s.st.Trade = created
	return nil
}

func (s *buyTradeRecordStep) Compensate(ctx context.Context) error { return nil }
