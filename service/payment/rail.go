package payment

import (
	"context"

	"github.com/fishnet-hq/paygate/service/catalog"
)

// Rail is the capability a settlement network must provide to participate in
// the payment lifecycle. The Solana rail is the only implementation in this
// repository; an EVM-style relay rail would implement the same surface.
type Rail interface {
	// BuildDraft assembles a fully-budgeted, unsigned transfer transaction
	// paying the dataset's owner its price, bound to the dataset and the
	// application via deterministic reference accounts. Returns the
	// transport-safe serialized draft. Never signs.
	BuildDraft(ctx context.Context, ds *catalog.Dataset, datasetID, signer string) (string, error)

	// BroadcastAndConfirm submits a signed, serialized transaction and
	// drives it to a confirmed commitment, resubmitting the identical bytes
	// on timeout. Returns the transaction signature.
	BroadcastAndConfirm(ctx context.Context, signedTx string) (string, error)

	// ValidateSettlement independently re-derives the payment facts from the
	// settled transaction and cross-checks them against the dataset's
	// current declared terms.
	ValidateSettlement(ctx context.Context, signature, datasetID string) (*Settlement, error)
}

// Granter publishes one permission record per timeseries and returns the
// opaque ids in input order. A partial failure fails the whole grant.
type Granter interface {
	Grant(ctx context.Context, authorizer, requestor, datasetID string, timeseriesIDs []string, idempotencyKey string) ([]string, error)
}

// Store persists verified transactions and serves historical queries. The
// signature is the primary key; inserting a duplicate returns
// ErrLedgerConflict.
type Store interface {
	RecordTransaction(ctx context.Context, txn *Transaction) error
	ListTransactionsBySigner(ctx context.Context, address string) ([]*Transaction, error)
	ListTransactionsBySeller(ctx context.Context, address string) ([]*Transaction, error)
}
