package solana

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/fishnet-hq/paygate/service/metrics"
)

// realRPCClient adapts the actual solana-go RPC client to our RPCClient interface.
// This adapter allows us to control the interface and makes testing easier.
// Every call is recorded against the injected metrics (which may be nil).
type realRPCClient struct {
	client  *rpc.Client
	metrics *metrics.Metrics
}

// NewRPCClient creates a new RPCClient that wraps the solana-go RPC client.
// For premium RPC endpoints that require API keys, include the key in the URL:
// - Helius: https://mainnet.helius-rpc.com/?api-key=YOUR-KEY
// - QuickNode: https://YOUR-ENDPOINT.quiknode.pro/YOUR-KEY/
// - Alchemy: https://solana-mainnet.g.alchemy.com/v2/YOUR-KEY
func NewRPCClient(rpcURL string, m *metrics.Metrics) RPCClient {
	return &realRPCClient{
		client:  rpc.New(rpcURL),
		metrics: m,
	}
}

func (r *realRPCClient) record(method string, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.metrics.RecordRPCCall(method, status, time.Since(start).Seconds())
}

func (r *realRPCClient) GetAccountInfo(
	ctx context.Context,
	account solana.PublicKey,
) (*rpc.GetAccountInfoResult, error) {
	start := time.Now()
	out, err := r.client.GetAccountInfo(ctx, account)
	r.record("getAccountInfo", start, err)
	return out, err
}

func (r *realRPCClient) GetLatestBlockhash(
	ctx context.Context,
	commitment rpc.CommitmentType,
) (*rpc.GetLatestBlockhashResult, error) {
	start := time.Now()
	out, err := r.client.GetLatestBlockhash(ctx, commitment)
	r.record("getLatestBlockhash", start, err)
	return out, err
}

func (r *realRPCClient) GetBlockHeight(
	ctx context.Context,
	commitment rpc.CommitmentType,
) (uint64, error) {
	start := time.Now()
	out, err := r.client.GetBlockHeight(ctx, commitment)
	r.record("getBlockHeight", start, err)
	return out, err
}

func (r *realRPCClient) GetRecentPrioritizationFees(
	ctx context.Context,
	accounts solana.PublicKeySlice,
) ([]rpc.PriorizationFeeResult, error) {
	start := time.Now()
	out, err := r.client.GetRecentPrioritizationFees(ctx, accounts)
	r.record("getRecentPrioritizationFees", start, err)
	return out, err
}

func (r *realRPCClient) SimulateTransactionWithOpts(
	ctx context.Context,
	tx *solana.Transaction,
	opts *rpc.SimulateTransactionOpts,
) (*rpc.SimulateTransactionResponse, error) {
	start := time.Now()
	out, err := r.client.SimulateTransactionWithOpts(ctx, tx, opts)
	r.record("simulateTransaction", start, err)
	return out, err
}

func (r *realRPCClient) SendRawTransactionWithOpts(
	ctx context.Context,
	rawTx []byte,
	opts rpc.TransactionOpts,
) (solana.Signature, error) {
	start := time.Now()
	out, err := r.client.SendRawTransactionWithOpts(ctx, rawTx, opts)
	r.record("sendTransaction", start, err)
	return out, err
}

func (r *realRPCClient) GetSignatureStatuses(
	ctx context.Context,
	searchTransactionHistory bool,
	signatures ...solana.Signature,
) (*rpc.GetSignatureStatusesResult, error) {
	start := time.Now()
	out, err := r.client.GetSignatureStatuses(ctx, searchTransactionHistory, signatures...)
	r.record("getSignatureStatuses", start, err)
	return out, err
}

func (r *realRPCClient) GetTransaction(
	ctx context.Context,
	signature solana.Signature,
	opts *rpc.GetTransactionOpts,
) (*rpc.GetTransactionResult, error) {
	start := time.Now()
	out, err := r.client.GetTransaction(ctx, signature, opts)
	r.record("getTransaction", start, err)
	return out, err
}
