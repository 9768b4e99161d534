// Package errs defines the structured error envelope shared by the gateway
// and its service adapters.
//
// Every failure that crosses a component boundary is wrapped into an *E so
// the HTTP layer can branch on a machine-readable Code instead of matching
// error strings. Business-rule failures (insufficient balance, below
// minimum) and infrastructure failures (circuit open, timeout) carry
// distinct codes because the saga treats them differently: the former
// short-circuit before any mutation, the latter trigger compensation.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error category.
type Code string

const (
	// CodeInvalidInput indicates a malformed or out-of-range client request.
	CodeInvalidInput Code = "invalid_input"
	// CodeBelowMinimum indicates the trade value is under the minimum notional.
	CodeBelowMinimum Code = "below_minimum"
	// CodeInsufficientBalance indicates the user cannot cover the total cost.
	CodeInsufficientBalance Code = "insufficient_balance"
	// CodeInsufficientHolding indicates the user holds less than the sell amount.
	CodeInsufficientHolding Code = "insufficient_holding"
	// CodePriceUnavailable indicates the market service could not supply a price.
	CodePriceUnavailable Code = "price_unavailable"
	// CodeServiceUnavailable indicates a downstream service is unreachable or
	// its circuit is open.
	CodeServiceUnavailable Code = "service_unavailable"
	// CodeServiceTimeout indicates a downstream call exceeded its deadline.
	CodeServiceTimeout Code = "service_timeout"
	// CodeDownstream carries a downstream 4xx/5xx through unchanged.
	CodeDownstream Code = "downstream_error"
	// CodeInternal captures uncategorized failures.
	CodeInternal Code = "internal"
)

// E is the error envelope. Service names the downstream involved (empty for
// local validation failures). Status holds the downstream HTTP status for
// CodeDownstream; for every other code it is derived from the code itself.
type E struct {
	Code        Code
	Service     string
	Message     string
	Status      int
	CircuitOpen bool

	cause error
}

func (e *E) Error() string {
	switch {
	case e.Service != "" && e.cause != nil:
		return fmt.Sprintf("%s [%s]: %s: %v", e.Code, e.Service, e.Message, e.cause)
	case e.Service != "":
		return fmt.Sprintf("%s [%s]: %s", e.Code, e.Service, e.Message)
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

func (e *E) Unwrap() error { return e.cause }

// Is lets errors.Is match two envelopes by code alone.
func (e *E) Is(target error) bool {
	var other *E
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// New builds an envelope with a formatted message.
func New(code Code, format string, args ...any) *E {
	return &E{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new envelope.
func Wrap(code Code, cause error, format string, args ...any) *E {
	return &E{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Unavailable marks a downstream service as unreachable. circuitOpen records
// whether the rejection came from an open breaker rather than the network,
// so callers can decide not to retry.
func Unavailable(service string, circuitOpen bool, cause error) *E {
	msg := "service unreachable"
	if circuitOpen {
		msg = "circuit open"
	}
	return &E{
		Code:        CodeServiceUnavailable,
		Service:     service,
		Message:     msg,
		CircuitOpen: circuitOpen,
		cause:       cause,
	}
}

// Timeout marks a downstream call that exceeded its deadline.
func Timeout(service string, cause error) *E {
	return &E{Code: CodeServiceTimeout, Service: service, Message: "call timed out", cause: cause}
}

// Downstream passes a downstream HTTP failure through unchanged so business
// errors from a service (e.g. its own insufficient-balance check) stay
// distinguishable from gateway infrastructure errors.
func Downstream(service string, status int, body string) *E {
	return &E{Code: CodeDownstream, Service: service, Status: status, Message: body}
}

// CodeOf extracts the code from any error, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCircuitOpen reports whether err stems from an open circuit breaker.
func IsCircuitOpen(err error) bool {
	var e *E
	return errors.As(err, &e) && e.CircuitOpen
}

// HTTPStatus maps an error to the status the gateway should answer with.
// Downstream errors keep their original status (pass-through).
func HTTPStatus(err error) int {
	var e *E
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Code {
	case CodeInvalidInput, CodeBelowMinimum, CodeInsufficientBalance, CodeInsufficientHolding:
		return http.StatusBadRequest
	case CodeServiceUnavailable, CodePriceUnavailable:
		return http.StatusServiceUnavailable
	case CodeServiceTimeout:
		return http.StatusGatewayTimeout
	case CodeDownstream:
		if e.Status >= 400 {
			return e.Status
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
