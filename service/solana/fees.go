package solana

import (
	"context"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// feeEstimate is the compute budget applied to a draft transaction.
type feeEstimate struct {
	priorityFeeRate  uint64 // micro-lamports per compute unit
	computeUnitLimit uint32
}

// computeUnitHeadroom is the multiplier applied to simulated unit
// consumption so minor runtime variance does not starve the transaction.
const computeUnitHeadroom = 1.2

// estimateFees derives a priority fee rate from recent fees on the writable
// accounts and a compute unit limit from simulating the unbudgeted draft.
// Both legs run concurrently and degrade independently to configured
// defaults; estimation never fails a draft.
func (r *Rail) estimateFees(ctx context.Context, draft *solana.Transaction, writable solana.PublicKeySlice) feeEstimate {
	est := feeEstimate{
		priorityFeeRate:  r.opts.DefaultPriorityFeeRate,
		computeUnitLimit: r.opts.DefaultComputeUnitLimit,
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		fees, err := r.rpc.GetRecentPrioritizationFees(ctx, writable)
		if err != nil {
			r.logger.WarnContext(ctx, "recent prioritization fees unavailable, using default rate",
				"default_rate", r.opts.DefaultPriorityFeeRate,
				"error", err,
			)
			return
		}
		if rate, ok := percentileFee(fees, 0.75); ok && rate > 0 {
			est.priorityFeeRate = rate
		}
	}()

	go func() {
		defer wg.Done()
		sim, err := r.rpc.SimulateTransactionWithOpts(ctx, draft, &rpc.SimulateTransactionOpts{
			SigVerify:              false,
			ReplaceRecentBlockhash: true,
		})
		if err != nil || sim == nil || sim.Value == nil || sim.Value.Err != nil || sim.Value.UnitsConsumed == nil {
			r.logger.WarnContext(ctx, "simulation unavailable, using default compute unit limit",
				"default_limit", r.opts.DefaultComputeUnitLimit,
				"error", err,
			)
			return
		}
		units := float64(*sim.Value.UnitsConsumed) * computeUnitHeadroom
		if units > float64(maxComputeUnitLimit) {
			units = maxComputeUnitLimit
		}
		if units > 0 {
			est.computeUnitLimit = uint32(units)
		}
	}()

	wg.Wait()
	return est
}

// percentileFee returns the pth percentile (0 < p <= 1) of the observed
// prioritization fees, or false if there are no observations.
func percentileFee(fees []rpc.PriorizationFeeResult, p float64) (uint64, bool) {
	if len(fees) == 0 {
		return 0, false
	}
	values := make([]uint64, len(fees))
	for i, f := range fees {
		values[i] = f.PrioritizationFee
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	idx := int(float64(len(values)-1) * p)
	return values[idx], true
}
