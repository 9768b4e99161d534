package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMergeIntoEmptyHolding(t *testing.T) {
	h := &Holding{Symbol: "BTC", CoinID: "bitcoin"}
	h.Merge(d("0.01"), d("50000"))

	require.True(t, h.Amount.Equal(d("0.01")))
	require.True(t, h.AverageBuyPrice.Equal(d("50000")))
	require.True(t, h.TotalInvested.Equal(d("500")))
}

func TestMergeRecomputesWeightedAverage(t *testing.T) {
	h := &Holding{Symbol: "BTC", Amount: d("0.01"), AverageBuyPrice: d("40000"), TotalInvested: d("400")}
	h.Merge(d("0.01"), d("50000"))

	// (0.01*40000 + 0.01*50000) / 0.02 = 45000
	require.True(t, h.Amount.Equal(d("0.02")))
	require.True(t, h.AverageBuyPrice.Equal(d("45000")), "avg = %s", h.AverageBuyPrice)
	require.True(t, h.TotalInvested.Equal(d("900")))
}

func TestReducePartial(t *testing.T) {
	h := &Holding{Symbol: "BTC", Amount: d("0.02"), AverageBuyPrice: d("45000"), TotalInvested: d("900")}

	empty, err := h.Reduce(d("0.01"))
	require.NoError(t, err)
	require.False(t, empty)
	require.True(t, h.Amount.Equal(d("0.01")))
	require.True(t, h.TotalInvested.Equal(d("450")))
}

func TestReduceToExactlyZero(t *testing.T) {
	h := &Holding{Symbol: "BTC", Amount: d("0.02"), AverageBuyPrice: d("45000")}

	empty, err := h.Reduce(d("0.02"))
	require.NoError(t, err)
	require.True(t, empty)
	require.True(t, h.Amount.IsZero())
}

func TestReduceInsufficientLeavesHoldingUntouched(t *testing.T) {
	h := &Holding{Symbol: "BTC", Amount: d("0.01"), AverageBuyPrice: d("45000"), TotalInvested: d("450")}

	_, err := h.Reduce(d("0.02"))
	require.ErrorIs(t, err, ErrInsufficient)
	require.True(t, h.Amount.Equal(d("0.01")))
	require.True(t, h.TotalInvested.Equal(d("450")))
}
