// Package payment defines the settlement gateway contract and a simulated
// implementation with a synthetic latency and failure rate.
package payment

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrDeclined is returned when the gateway rejects a charge. No money moved;
// the caller may retry.
var ErrDeclined = errors.New("payment declined by gateway")

// Request describes one charge attempt.
type Request struct {
	Amount       int64
	Method       string
	CardLastFour string
}

// Result is a successful charge confirmation. TransactionID is globally unique.
type Result struct {
	TransactionID string
	Gateway       string
	Message       string
}

// Gateway is the external settlement collaborator. Idempotency is the
// caller's responsibility; one settlement attempt makes exactly one Charge call.
type Gateway interface {
	Charge(ctx context.Context, req Request) (Result, error)
}

// SimulatedGateway approves charges with a configurable probability after a
// fixed synthetic delay.
type SimulatedGateway struct {
	failureRate float64
	delay       time.Duration
}

// NewSimulatedGateway builds a gateway that fails with the given probability
// (0 never fails, 1 always fails) after the given delay.
func NewSimulatedGateway(failureRate float64, delay time.Duration) *SimulatedGateway {
	return &SimulatedGateway{failureRate: failureRate, delay: delay}
}

// Charge waits out the synthetic latency, honoring context cancellation, then
// approves or declines.
func (g *SimulatedGateway) Charge(ctx context.Context, _ Request) (Result, error) {
	timer := time.NewTimer(g.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-timer.C:
	}

	if rand.Float64() < g.failureRate {
		return Result{}, ErrDeclined
	}
	return Result{
		TransactionID: NewTransactionID(),
		Gateway:       "simulated_gateway",
		Message:       "payment processed successfully",
	}, nil
}

// NewTransactionID returns a globally unique transaction identifier.
func NewTransactionID() string {
	return "TXN-" + strings.ToUpper(uuid.NewString())
}
