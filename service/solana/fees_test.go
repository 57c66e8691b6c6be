package solana

import (
	"context"
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPercentileFee tests percentile selection over observed fees.
func TestPercentileFee(t *testing.T) {
	fees := func(values ...uint64) []rpc.PriorizationFeeResult {
		out := make([]rpc.PriorizationFeeResult, len(values))
		for i, v := range values {
			out[i] = rpc.PriorizationFeeResult{Slot: uint64(i), PrioritizationFee: v}
		}
		return out
	}

	t.Run("empty returns no observation", func(t *testing.T) {
		_, ok := percentileFee(nil, 0.75)
		assert.False(t, ok)
	})

	t.Run("single observation", func(t *testing.T) {
		v, ok := percentileFee(fees(7000), 0.75)
		require.True(t, ok)
		assert.Equal(t, uint64(7000), v)
	})

	t.Run("75th percentile of unsorted input", func(t *testing.T) {
		v, ok := percentileFee(fees(9000, 1000, 5000, 3000, 7000), 0.75)
		require.True(t, ok)
		assert.Equal(t, uint64(7000), v)
	})
}

// TestEstimateFees_UsesObservedData tests that live fee data and simulation
// results drive the estimate.
func TestEstimateFees_UsesObservedData(t *testing.T) {
	units := uint64(100_000)
	mock := &mockRPCClient{
		prioritizationFn: func() ([]rpc.PriorizationFeeResult, error) {
			return []rpc.PriorizationFeeResult{
				{Slot: 1, PrioritizationFee: 2000},
				{Slot: 2, PrioritizationFee: 4000},
				{Slot: 3, PrioritizationFee: 6000},
				{Slot: 4, PrioritizationFee: 8000},
			}, nil
		},
		simulateFn: func() (*rpc.SimulateTransactionResponse, error) {
			return &rpc.SimulateTransactionResponse{
				Value: &rpc.SimulateTransactionResult{UnitsConsumed: &units},
			}, nil
		},
	}
	rail := newTestRail(t, mock, &mockCatalog{}, solana.PublicKey{})

	est := rail.estimateFees(context.Background(), &solana.Transaction{}, nil)

	assert.Equal(t, uint64(6000), est.priorityFeeRate)
	// Simulated consumption gets headroom applied.
	assert.Equal(t, uint32(120_000), est.computeUnitLimit)
}

// TestEstimateFees_FallsBackOnErrors tests that estimation degrades to the
// configured defaults when the RPC node cannot help.
func TestEstimateFees_FallsBackOnErrors(t *testing.T) {
	mock := &mockRPCClient{
		prioritizationFn: func() ([]rpc.PriorizationFeeResult, error) {
			return nil, fmt.Errorf("node unavailable")
		},
		simulateFn: func() (*rpc.SimulateTransactionResponse, error) {
			return nil, fmt.Errorf("node unavailable")
		},
	}
	rail := newTestRail(t, mock, &mockCatalog{}, solana.PublicKey{})

	est := rail.estimateFees(context.Background(), &solana.Transaction{}, nil)

	assert.Equal(t, uint64(5000), est.priorityFeeRate)
	assert.Equal(t, uint32(maxComputeUnitLimit), est.computeUnitLimit)
}

// TestEstimateFees_EmptyFeeData tests the default rate when the node
// returns an empty fee list.
func TestEstimateFees_EmptyFeeData(t *testing.T) {
	units := uint64(2_000_000) // above the network cap
	mock := &mockRPCClient{
		prioritizationFn: func() ([]rpc.PriorizationFeeResult, error) {
			return []rpc.PriorizationFeeResult{}, nil
		},
		simulateFn: func() (*rpc.SimulateTransactionResponse, error) {
			return &rpc.SimulateTransactionResponse{
				Value: &rpc.SimulateTransactionResult{UnitsConsumed: &units},
			}, nil
		},
	}
	rail := newTestRail(t, mock, &mockCatalog{}, solana.PublicKey{})

	est := rail.estimateFees(context.Background(), &solana.Transaction{}, nil)

	assert.Equal(t, uint64(5000), est.priorityFeeRate)
	// Oversized simulations clamp to the network ceiling.
	assert.Equal(t, uint32(maxComputeUnitLimit), est.computeUnitLimit)
}
