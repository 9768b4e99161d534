package service

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/cryptosim/trading-sagas/internal/resilient"
)

// User adapts the user service's balance endpoints.
type User struct {
	client *resilient.Client
}

// NewUser builds the adapter.
func NewUser(client *resilient.Client) *User {
	return &User{client: client}
}

type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

type balanceDeltaRequest struct {
	UserID      string          `json:"userId"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
}

// GetBalance reads the user's current balance.
func (u *User) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	resp, err := u.client.Call(ctx, resilient.Request{
		Service: userServiceName,
		Method:  http.MethodGet,
		Path:    "/balance",
	})
	if err != nil {
		return decimal.Zero, err
	}
	out, err := resilient.Decode[balanceResponse](resp)
	if err != nil {
		return decimal.Zero, err
	}
	return out.Balance, nil
}

// ApplyBalanceDelta moves a signed amount and returns the resulting balance.
// The user service applies the mutation atomically and re-validates against
// overdraft on its side; the gateway's earlier balance check is advisory.
func (u *User) ApplyBalanceDelta(ctx context.Context, userID string, delta decimal.Decimal, kind, description string) (decimal.Decimal, error) {
	resp, err := u.client.Call(ctx, resilient.Request{
		Service: userServiceName,
		Method:  http.MethodPut,
		Path:    "/balance",
		Body: balanceDeltaRequest{
			UserID:      userID,
			Amount:      delta,
			Type:        kind,
			Description: description,
		},
	})
	if err != nil {
		return decimal.Zero, err
	}
	out, err := resilient.Decode[balanceResponse](resp)
	if err != nil {
		return decimal.Zero, err
	}
	return out.Balance, nil
}
