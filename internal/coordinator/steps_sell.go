package coordinator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cryptosim/trading-sagas/internal/api-gateway/core/domain/entity"
	"github.com/cryptosim/trading-sagas/internal/pkg/errs"
)

// --- Holding_Check_Step ---

// sellHoldingCheckStep verifies the user holds enough of the coin and
// snapshots the holding so a rollback can recreate it, since a later reduce
// may delete the holding entirely. The sufficiency check here is a fast-fail
// only; the portfolio service validates again atomically at reduce time
// because two concurrent sells can both pass this read.
type sellHoldingCheckStep struct {
	deps Deps
	st   *SellState
}

func (s *sellHoldingCheckStep) Name() string { return "Holding_Check_Step" }

func (s *sellHoldingCheckStep) Execute(ctx context.Context) error {
	holdings, err := s.deps.Portfolio.ListHoldings(ctx, s.st.UserID)
	if err != nil {
		return err
	}

	for i := range holdings {
		if strings.EqualFold(holdings[i].Symbol, s.st.Symbol) {
			h := holdings[i]
			if h.Amount.LessThan(s.st.Amount) {
				return errs.New(errs.CodeInsufficientHolding,
					"holding %s of %s cannot cover sell of %s",
					h.Amount, s.st.Symbol, s.st.Amount)
			}
			s.st.HoldingSnapshot = &h
			return nil
		}
	}
	return errs.New(errs.CodeInsufficientHolding, "no %s holding found", s.st.Symbol)
}

func (s *sellHoldingCheckStep) Compensate(ctx context.Context) error { return nil }

// --- Price_Lookup_Step (sell) ---

// sellPriceLookupStep fetches the price and derives the proceeds:
// totalProceeds = amount * price, fee = totalProceeds * feeRate,
// finalProceeds = totalProceeds - fee,
// profitLoss = (price - averageBuyPrice) * amount - fee.
type sellPriceLookupStep struct {
	deps  Deps
	rules Rules
	st    *SellState
}

func (s *sellPriceLookupStep) Name() string { return "Price_Lookup_Step" }

func (s *sellPriceLookupStep) Execute(ctx context.Context) error {
	quote, err := s.deps.Market.GetPrice(ctx, s.st.HoldingSnapshot.CoinID)
	if err != nil {
		return err
	}
	s.st.Quote = quote

	s.st.TotalProceeds = s.st.Amount.Mul(quote.Price)
	s.st.Fee = s.st.TotalProceeds.Mul(s.rules.FeeRate)
	s.st.FinalProceeds = s.st.TotalProceeds.Sub(s.st.Fee)
	s.st.ProfitLoss = quote.Price.
		Sub(s.st.HoldingSnapshot.AverageBuyPrice).
		Mul(s.st.Amount).
		Sub(s.st.Fee)
	return nil
}

func (s *sellPriceLookupStep) Compensate(ctx context.Context) error { return nil }

// --- Balance_Check_Step (sell) ---

// sellBalanceCheckStep only records balanceBefore for the trade record.
// Sells never require a minimum balance.
type sellBalanceCheckStep struct {
	deps Deps
	st   *SellState
}

func (s *sellBalanceCheckStep) Name() string { return "Balance_Check_Step" }

func (s *sellBalanceCheckStep) Execute(ctx context.Context) error {
	balance, err := s.deps.User.GetBalance(ctx, s.st.UserID)
	if err != nil {
		return err
	}
	s.st.BalanceBefore = balance
	return nil
}

func (s *sellBalanceCheckStep) Compensate(ctx context.Context) error { return nil }

// --- Balance_Credit_Step ---

// sellBalanceCreditStep credits the proceeds. Its compensation debits them
// back; failing that leaves the user with money for coins they still hold,
// hence critical.
type sellBalanceCreditStep struct {
	deps Deps
	st   *SellState
}

func (s *sellBalanceCreditStep) Name() string { return "Balance_Credit_Step" }

func (s *sellBalanceCreditStep) Execute(ctx context.Context) error {
	newBalance, err := s.deps.User.ApplyBalanceDelta(ctx, s.st.UserID,
		s.st.FinalProceeds, "trade",
		fmt.Sprintf("sell %s %s", s.st.Amount, s.st.Symbol))
	if err != nil {
		return err
	}
	s.st.BalanceMutated = true
	s.st.BalanceDelta = s.st.FinalProceeds
	s.st.BalanceAfter = newBalance
	return nil
}

func (s *sellBalanceCreditStep) Compensate(ctx context.Context) error {
	if !s.st.BalanceMutated {
		return nil
	}
	_, err := s.deps.User.ApplyBalanceDelta(ctx, s.st.UserID,
		s.st.BalanceDelta.Neg(), "rollback",
		fmt.Sprintf("reverse credit for failed sell of %s %s", s.st.Amount, s.st.Symbol))
	return err
}

func (s *sellBalanceCreditStep) Mutated() bool { return s.st.BalanceMutated }

func (s *sellBalanceCreditStep) CompensationCritical() bool { return true }

// --- Holding_Reduce_Step ---

// sellHoldingReduceStep decrements the holding; the portfolio service deletes
// it if the remaining amount hits exactly zero. Because a reduce is not
// symmetrically invertible once the holding is gone, compensation recreates
// the sold portion from the snapshot at the original average buy price.
type sellHoldingReduceStep struct {
	deps Deps
	st   *SellState
}

func (s *sellHoldingReduceStep) Name() string { return "Holding_Reduce_Step" }

func (s *sellHoldingReduceStep) Execute(ctx context.Context) error {
	err := s.deps.Portfolio.ReduceHolding(ctx, s.st.UserID, s.st.Symbol, s.st.Amount)
	if err != nil {
		return err
	}
	s.st.HoldingMutated = true
	return nil
}

func (s *sellHoldingReduceStep) Compensate(ctx context.Context) error {
	if !s.st.HoldingMutated {
		return nil
	}
	snap := s.st.HoldingSnapshot
	return s.deps.Portfolio.AddHolding(ctx, s.st.UserID, entity.AddHolding{
		Symbol:   snap.Symbol,
		CoinID:   snap.CoinID,
		Name:     snap.Name,
		Amount:   s.st.Amount,
		BuyPrice: snap.AverageBuyPrice,
	})
}

func (s *sellHoldingReduceStep) Mutated() bool { return s.st.HoldingMutated }

// --- Trade_Record_Step (sell) ---

type sellTradeRecordStep struct {
	deps Deps
	st   *SellState
}

func (s *sellTradeRecordStep) Name() string { return "Trade_Record_Step" }

func (s *sellTradeRecordStep) Execute(ctx context.Context) error {
	pl := s.st.ProfitLoss
	created, err := s.deps.Trades.CreateTrade(ctx, &entity.Trade{
		UserID:        s.st.UserID,
		Type:          entity.TradeTypeSell,
		Symbol:        s.st.Symbol,
		Amount:        s.st.Amount,
		Price:         s.st.Quote.Price,
		TotalCost:     s.st.TotalProceeds,
		Fee:           s.st.Fee,
		BalanceBefore: s.st.BalanceBefore,
		BalanceAfter:  s.st.BalanceAfter,
		ProfitLoss:    &pl,
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

func (s *sellTradeRecordStep) Compensate(ctx context.Context) error { return nil }
