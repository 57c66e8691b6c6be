package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fishnet-hq/paygate/service/payment"
)

func testTxn(sig, signer, seller string) *payment.Transaction {
	return &payment.Transaction{
		Payment: payment.Payment{
			Signature:   sig,
			DatasetID:   "deadbeef",
			DatasetName: "ocean-temps",
			Signer:      signer,
			Seller:      seller,
			Currency:    "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			Amount:      "2500000",
			Timestamp:   time.Now().UTC().Truncate(time.Microsecond),
		},
		PermissionHashes: []string{"PERMISSIONS-1", "PERMISSIONS-2"},
	}
}

// TestRecordTransaction tests insert and read-back of a ledger row.
func TestRecordTransaction(t *testing.T) {
	ts := NewTestStore(t)
	defer ts.Close()
	defer ts.Cleanup(t)

	ctx := context.Background()
	txn := testTxn("sig-record-1", "buyer-a", "seller-a")
	require.NoError(t, ts.RecordTransaction(ctx, txn))

	got, err := ts.GetTransaction(ctx, "sig-record-1")
	require.NoError(t, err)
	assert.Equal(t, txn.Signature, got.Signature)
	assert.Equal(t, txn.DatasetID, got.DatasetID)
	assert.Equal(t, txn.Amount, got.Amount)
	assert.Equal(t, txn.PermissionHashes, got.PermissionHashes)
	assert.WithinDuration(t, txn.Timestamp, got.Timestamp, time.Millisecond)
}

// TestRecordTransaction_Duplicate tests that inserting the same signature
// twice reports a ledger conflict.
func TestRecordTransaction_Duplicate(t *testing.T) {
	ts := NewTestStore(t)
	defer ts.Close()
	defer ts.Cleanup(t)

	ctx := context.Background()
	txn := testTxn("sig-dup-1", "buyer-a", "seller-a")
	require.NoError(t, ts.RecordTransaction(ctx, txn))

	err := ts.RecordTransaction(ctx, txn)
	require.Error(t, err)
	assert.True(t, errors.Is(err, payment.ErrLedgerConflict))
}

// TestListTransactions tests the buyer-side and seller-side queries.
func TestListTransactions(t *testing.T) {
	ts := NewTestStore(t)
	defer ts.Close()
	defer ts.Cleanup(t)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, ts.RecordTransaction(ctx, testTxn(
			fmt.Sprintf("sig-list-%d", i), "buyer-a", "seller-a")))
	}
	require.NoError(t, ts.RecordTransaction(ctx, testTxn("sig-list-other", "buyer-b", "seller-b")))

	purchases, err := ts.ListTransactionsBySigner(ctx, "buyer-a")
	require.NoError(t, err)
	assert.Len(t, purchases, 3)

	sales, err := ts.ListTransactionsBySeller(ctx, "seller-a")
	require.NoError(t, err)
	assert.Len(t, sales, 3)

	none, err := ts.ListTransactionsBySigner(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}
