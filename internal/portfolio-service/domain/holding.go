// Package domain holds the portfolio service's holding arithmetic. All
// mutations happen under the server's lock, so the methods here are plain
// single-threaded value math.
package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInsufficient is returned when a reduce asks for more than is held.
var ErrInsufficient = errors.New("holding amount insufficient")

// Holding is one coin position of one user.
type Holding struct {
	Symbol          string          `json:"symbol"`
	CoinID          string          `json:"coinId"`
	Name            string          `json:"name"`
	Amount          decimal.Decimal `json:"amount"`
	AverageBuyPrice decimal.Decimal `json:"averageBuyPrice"`
	TotalInvested   decimal.Decimal `json:"totalInvested"`
}

// Merge folds a new purchase into the holding, recomputing the
// weighted-average buy price:
//
//	newAvg = (oldAmount*oldAvg + amount*price) / (oldAmount + amount)
func (h *Holding) Merge(amount, buyPrice decimal.Decimal) {
	cost := amount.Mul(buyPrice)
	newAmount := h.Amount.Add(amount)

	h.AverageBuyPrice = h.Amount.Mul(h.AverageBuyPrice).Add(cost).Div(newAmount)
	h.TotalInvested = h.TotalInvested.Add(cost)
	h.Amount = newAmount
}

// Reduce removes a sold amount. It reports whether the holding is now empty
// (amount exactly zero) and should be deleted. A reduce larger than the held
// amount fails without mutating anything.
func (h *Holding) Reduce(amount decimal.Decimal) (empty bool, err error) {
	if h.Amount.LessThan(amount) {
		return false, ErrInsufficient
	}
	h.Amount = h.Amount.Sub(amount)
	h.TotalInvested = h.Amount.Mul(h.AverageBuyPrice)
	return h.Amount.IsZero(), nil
}
