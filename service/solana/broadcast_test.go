package solana

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fishnet-hq/paygate/service/payment"
)

// signedTestTx builds a minimal signed transaction and returns its base64
// serialization alongside the signature. The signature bytes are synthetic;
// broadcast never verifies them, the cluster does.
func signedTestTx(t *testing.T) (string, solana.Signature) {
	t.Helper()

	payer := solana.MustPublicKeyFromBase58("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
	dest := solana.MustPublicKeyFromBase58("4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T")

	ix := solana.NewInstruction(
		solana.SystemProgramID,
		solana.AccountMetaSlice{
			solana.Meta(payer).WRITE().SIGNER(),
			solana.Meta(dest).WRITE(),
		},
		[]byte{2, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0},
	)

	tx, err := solana.NewTransactionBuilder().
		AddInstruction(ix).
		SetFeePayer(payer).
		SetRecentBlockHash(solana.Hash{9, 9, 9}).
		Build()
	require.NoError(t, err)

	sig := solana.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")
	tx.Signatures = []solana.Signature{sig}

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw), sig
}

func confirmedStatus() *rpc.GetSignatureStatusesResult {
	return &rpc.GetSignatureStatusesResult{
		Value: []*rpc.SignatureStatusesResult{
			{ConfirmationStatus: rpc.ConfirmationStatusConfirmed},
		},
	}
}

func pendingStatus() *rpc.GetSignatureStatusesResult {
	return &rpc.GetSignatureStatusesResult{
		Value: []*rpc.SignatureStatusesResult{nil},
	}
}

// TestBroadcastAndConfirm_Confirms tests the happy path where the
// transaction confirms within the first window.
func TestBroadcastAndConfirm_Confirms(t *testing.T) {
	signedTx, sig := signedTestTx(t)

	mock := &mockRPCClient{
		signatureStatusesFn: func() (*rpc.GetSignatureStatusesResult, error) {
			return confirmedStatus(), nil
		},
	}
	rail := newTestRail(t, mock, &mockCatalog{}, solana.PublicKey{})

	got, err := rail.BroadcastAndConfirm(context.Background(), signedTx)
	require.NoError(t, err)
	assert.Equal(t, sig.String(), got)
	assert.Equal(t, 1, mock.sendCallCount(), "no resubmission needed")
}

// TestBroadcastAndConfirm_ResubmitsThenConfirms tests that the identical
// bytes are resubmitted after a quiet window and the loop still converges on
// the original signature.
func TestBroadcastAndConfirm_ResubmitsThenConfirms(t *testing.T) {
	signedTx, sig := signedTestTx(t)

	var firstPayload []byte
	mock := &mockRPCClient{}
	mock.sendFn = func(rawTx []byte) (solana.Signature, error) {
		if firstPayload == nil {
			firstPayload = append([]byte(nil), rawTx...)
		} else {
			assert.Equal(t, firstPayload, rawTx, "resubmission must reuse the identical bytes")
		}
		return sig, nil
	}
	mock.signatureStatusesFn = func() (*rpc.GetSignatureStatusesResult, error) {
		// Stay silent until the first resubmission has happened.
		if mock.sendCallCount() < 2 {
			return pendingStatus(), nil
		}
		return confirmedStatus(), nil
	}
	rail := newTestRail(t, mock, &mockCatalog{}, solana.PublicKey{})

	got, err := rail.BroadcastAndConfirm(context.Background(), signedTx)
	require.NoError(t, err)
	assert.Equal(t, sig.String(), got)
	assert.GreaterOrEqual(t, mock.sendCallCount(), 2)
}

// TestBroadcastAndConfirm_BlockhashExpires tests that the loop gives up
// once the chain has moved past the blockhash validity bound.
func TestBroadcastAndConfirm_BlockhashExpires(t *testing.T) {
	signedTx, _ := signedTestTx(t)

	mock := &mockRPCClient{
		signatureStatusesFn: func() (*rpc.GetSignatureStatusesResult, error) {
			return pendingStatus(), nil
		},
		blockHeightFn: func() (uint64, error) {
			return 2000, nil // beyond the default lastValidBlockHeight of 1000
		},
	}
	rail := newTestRail(t, mock, &mockCatalog{}, solana.PublicKey{})

	_, err := rail.BroadcastAndConfirm(context.Background(), signedTx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, payment.ErrConfirmationFailed))
}

// TestBroadcastAndConfirm_OnChainFailure tests that an executed-but-failed
// transaction is not treated as settled.
func TestBroadcastAndConfirm_OnChainFailure(t *testing.T) {
	signedTx, _ := signedTestTx(t)

	mock := &mockRPCClient{
		signatureStatusesFn: func() (*rpc.GetSignatureStatusesResult, error) {
			return &rpc.GetSignatureStatusesResult{
				Value: []*rpc.SignatureStatusesResult{
					{Err: map[string]interface{}{"InstructionError": []interface{}{}}},
				},
			}, nil
		},
	}
	rail := newTestRail(t, mock, &mockCatalog{}, solana.PublicKey{})

	_, err := rail.BroadcastAndConfirm(context.Background(), signedTx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, payment.ErrConfirmationFailed))
}

// TestBroadcastAndConfirm_RejectsBadPayloads tests the input guards before
// any network traffic happens.
func TestBroadcastAndConfirm_RejectsBadPayloads(t *testing.T) {
	rail := newTestRail(t, &mockRPCClient{}, &mockCatalog{}, solana.PublicKey{})

	t.Run("not base64", func(t *testing.T) {
		_, err := rail.BroadcastAndConfirm(context.Background(), "!!! not base64 !!!")
		require.Error(t, err)
		assert.True(t, errors.Is(err, payment.ErrInputInvalid))
	})

	t.Run("unsigned transaction", func(t *testing.T) {
		payer := solana.MustPublicKeyFromBase58("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
		tx, err := solana.NewTransactionBuilder().
			AddInstruction(solana.NewInstruction(solana.SystemProgramID, solana.AccountMetaSlice{
				solana.Meta(payer).WRITE().SIGNER(),
			}, []byte{0})).
			SetFeePayer(payer).
			SetRecentBlockHash(solana.Hash{1}).
			Build()
		require.NoError(t, err)
		raw, err := tx.MarshalBinary()
		require.NoError(t, err)

		_, err = rail.BroadcastAndConfirm(context.Background(), base64.StdEncoding.EncodeToString(raw))
		require.Error(t, err)
		assert.True(t, errors.Is(err, payment.ErrInputInvalid))
	})
}

// TestBroadcastAndConfirm_ContextCancellation tests that the loop honors
// caller cancellation.
func TestBroadcastAndConfirm_ContextCancellation(t *testing.T) {
	signedTx, _ := signedTestTx(t)

	ctx, cancel := context.WithCancel(context.Background())
	polls := 0
	mock := &mockRPCClient{
		signatureStatusesFn: func() (*rpc.GetSignatureStatusesResult, error) {
			polls++
			if polls >= 2 {
				cancel()
			}
			return pendingStatus(), nil
		},
	}
	rail := newTestRail(t, mock, &mockCatalog{}, solana.PublicKey{})

	_, err := rail.BroadcastAndConfirm(ctx, signedTx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, payment.ErrConfirmationFailed))
}

// TestBroadcastAndConfirm_SubmitFailure tests that a rejected initial
// submission surfaces immediately.
func TestBroadcastAndConfirm_SubmitFailure(t *testing.T) {
	signedTx, _ := signedTestTx(t)

	mock := &mockRPCClient{
		sendFn: func(rawTx []byte) (solana.Signature, error) {
			return solana.Signature{}, fmt.Errorf("node rejected transaction")
		},
	}
	rail := newTestRail(t, mock, &mockCatalog{}, solana.PublicKey{})

	_, err := rail.BroadcastAndConfirm(context.Background(), signedTx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, payment.ErrInputInvalid)
}
