package solana

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"

	"github.com/fishnet-hq/paygate/service/catalog"
)

// mockRPCClient implements RPCClient for testing.
// It's behavior-focused: each method delegates to a configurable function,
// with call counts tracked for the few tests that care about resubmission.
type mockRPCClient struct {
	mu        sync.Mutex
	sendCalls int

	accountInfoFn       func(account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	latestBlockhashFn   func() (*rpc.GetLatestBlockhashResult, error)
	blockHeightFn       func() (uint64, error)
	prioritizationFn    func() ([]rpc.PriorizationFeeResult, error)
	simulateFn          func() (*rpc.SimulateTransactionResponse, error)
	sendFn              func(rawTx []byte) (solana.Signature, error)
	signatureStatusesFn func() (*rpc.GetSignatureStatusesResult, error)
	getTransactionFn    func(sig solana.Signature) (*rpc.GetTransactionResult, error)
}

func (m *mockRPCClient) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	if m.accountInfoFn == nil {
		return nil, rpc.ErrNotFound
	}
	return m.accountInfoFn(account)
}

func (m *mockRPCClient) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	if m.latestBlockhashFn == nil {
		return &rpc.GetLatestBlockhashResult{
			Value: &rpc.LatestBlockhashResult{
				Blockhash:            solana.Hash{1, 2, 3},
				LastValidBlockHeight: 1000,
			},
		}, nil
	}
	return m.latestBlockhashFn()
}

func (m *mockRPCClient) GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error) {
	if m.blockHeightFn == nil {
		return 1, nil
	}
	return m.blockHeightFn()
}

func (m *mockRPCClient) GetRecentPrioritizationFees(ctx context.Context, accounts solana.PublicKeySlice) ([]rpc.PriorizationFeeResult, error) {
	if m.prioritizationFn == nil {
		return nil, nil
	}
	return m.prioritizationFn()
}

func (m *mockRPCClient) SimulateTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts *rpc.SimulateTransactionOpts) (*rpc.SimulateTransactionResponse, error) {
	if m.simulateFn == nil {
		return nil, rpc.ErrNotFound
	}
	return m.simulateFn()
}

func (m *mockRPCClient) SendRawTransactionWithOpts(ctx context.Context, rawTx []byte, opts rpc.TransactionOpts) (solana.Signature, error) {
	m.mu.Lock()
	m.sendCalls++
	m.mu.Unlock()
	if m.sendFn == nil {
		return solana.Signature{}, nil
	}
	return m.sendFn(rawTx)
}

func (m *mockRPCClient) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	if m.signatureStatusesFn == nil {
		return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{nil}}, nil
	}
	return m.signatureStatusesFn()
}

func (m *mockRPCClient) GetTransaction(ctx context.Context, signature solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	if m.getTransactionFn == nil {
		return nil, rpc.ErrNotFound
	}
	return m.getTransactionFn(signature)
}

func (m *mockRPCClient) sendCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sendCalls
}

// mockCatalog implements catalog.Reader with a fixed dataset per id.
type mockCatalog struct {
	datasets map[string]*catalog.Dataset
	err      error
}

func (m *mockCatalog) GetDataset(ctx context.Context, datasetID string) (*catalog.Dataset, error) {
	if m.err != nil {
		return nil, m.err
	}
	ds, ok := m.datasets[datasetID]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return ds, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRail(t *testing.T, mock *mockRPCClient, cat catalog.Reader, mint solana.PublicKey) *Rail {
	t.Helper()
	// Short windows keep the confirm and fetch loops fast under test.
	return NewRail(mock, cat, mint, "fishnet", Options{
		ConfirmTimeout:          50 * time.Millisecond,
		ConfirmPollInterval:     10 * time.Millisecond,
		SettlementFetchInterval: 10 * time.Millisecond,
		SettlementFetchAttempts: 3,
	}, nil, testLogger())
}

// encodeTokenAccount builds the 165-byte SPL token account layout.
func encodeTokenAccount(mint, owner solana.PublicKey, amount uint64, state byte) []byte {
	data := make([]byte, 165)
	copy(data[0:32], mint[:])
	copy(data[32:64], owner[:])
	binary.LittleEndian.PutUint64(data[64:72], amount)
	// delegate COption tag + pubkey stay zero
	data[108] = state
	// is_native, delegated_amount, close_authority stay zero
	return data
}

// encodeMint builds the 82-byte SPL mint layout.
func encodeMint(decimals uint8, supply uint64) []byte {
	data := make([]byte, 82)
	// mint_authority COption tag + pubkey stay zero
	binary.LittleEndian.PutUint64(data[36:44], supply)
	data[44] = decimals
	data[45] = 1 // is_initialized
	// freeze_authority stays zero
	return data
}

// accountInfo wraps raw account bytes in a GetAccountInfoResult. The data
// envelope has unexported fields, so it is built through JSON unmarshaling
// the same way an RPC response would be.
func accountInfo(t *testing.T, owner solana.PublicKey, raw []byte) *rpc.GetAccountInfoResult {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"value": map[string]interface{}{
			"owner": owner.String(),
			"data":  []string{base64.StdEncoding.EncodeToString(raw), "base64"},
		},
	})
	require.NoError(t, err)

	var result rpc.GetAccountInfoResult
	require.NoError(t, json.Unmarshal(payload, &result))
	return &result
}

// makeTransactionEnvelope creates a TransactionResultEnvelope from a
// Transaction. Since the envelope has unexported fields, we use JSON
// marshaling.
func makeTransactionEnvelope(t *testing.T, tx *solana.Transaction) *rpc.TransactionResultEnvelope {
	t.Helper()
	txJSON, err := json.Marshal(tx)
	require.NoError(t, err)

	var temp struct {
		Transaction json.RawMessage `json:"transaction"`
	}
	temp.Transaction = txJSON

	envelopeJSON, err := json.Marshal(temp)
	require.NoError(t, err)

	var result rpc.GetTransactionResult
	require.NoError(t, json.Unmarshal(envelopeJSON, &result))
	return result.Transaction
}
