package payment

import (
	"time"
)

// Payment is the verified result of a settled transfer. Every field except
// Signature and DatasetID is re-derived from the chain and the dataset's
// current state, never from client-supplied request parameters.
type Payment struct {
	Signature   string    `json:"signature"`
	DatasetID   string    `json:"datasetId"`
	DatasetName string    `json:"datasetName"`
	Signer      string    `json:"signer"` // buyer wallet (owner of the source token account)
	Seller      string    `json:"seller"` // payee wallet (owner of the destination token account)
	Currency    string    `json:"currency"` // mint address
	Amount      string    `json:"amount"`   // raw smallest-unit integer, decimal string
	Timestamp   time.Time `json:"timestamp"`
}

// Transaction is a ledger row: a verified payment plus the opaque ids
// returned by the permission grant fan-out, one per timeseries, in the
// dataset's timeseries order. Rows are immutable once created.
type Transaction struct {
	Payment
	PermissionHashes []string `json:"permissionHashes"`
}

// Settlement is the output of a successful on-chain validation: the payment
// facts plus the resource units the payment entitles the buyer to.
type Settlement struct {
	Payment       *Payment
	TimeseriesIDs []string
}

// DatasetSales aggregates sales of a single dataset for reporting.
type DatasetSales struct {
	Sales  int    `json:"sales"`
	Profit string `json:"profit"` // human units
}

// ActivityReport is the response of the transaction history query: all
// ledger rows involving an address as buyer or seller, plus derived
// aggregates. Amounts are rendered in human units.
type ActivityReport struct {
	TotalProfit  string                  `json:"totalProfit"`
	Purchases    []*Transaction          `json:"purchases"`
	Sales        []*Transaction          `json:"sales"`
	DatasetSales map[string]DatasetSales `json:"datasetSales"`
	TotalSales   int                     `json:"totalSales"`
}
