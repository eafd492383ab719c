package payment

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChargeApproves(t *testing.T) {
	gw := NewSimulatedGateway(0, time.Millisecond)

	result, err := gw.Charge(context.Background(), Request{Amount: 50, Method: "cash"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.TransactionID, "TXN-"))
	assert.Equal(t, "simulated_gateway", result.Gateway)
}

func TestChargeDeclines(t *testing.T) {
	gw := NewSimulatedGateway(1, time.Millisecond)

	_, err := gw.Charge(context.Background(), Request{Amount: 50, Method: "cash"})
	assert.ErrorIs(t, err, ErrDeclined)
}

func TestChargeHonorsCancellation(t *testing.T) {
	gw := NewSimulatedGateway(0, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := gw.Charge(ctx, Request{Amount: 50, Method: "cash"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTransactionIDsUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		id := NewTransactionID()
		assert.True(t, strings.HasPrefix(id, "TXN-"))
		_, dup := seen[id]
		require.False(t, dup, "duplicate transaction id %s", id)
		seen[id] = struct{}{}
	}
}
