package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/fishnet-hq/paygate/service/catalog"
	"github.com/fishnet-hq/paygate/service/metrics"
)

// Service orchestrates the payment lifecycle: draft construction, the
// broadcast/confirm/validate pipeline, the permission grant fan-out, and the
// ledger insert. All collaborators are injected at construction; the service
// holds no mutable state of its own.
type Service struct {
	rail         Rail
	catalog      catalog.Reader
	granter      Granter
	store        Store
	mintDecimals int
	sendDeadline time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewService creates a payment service. mintDecimals is the decimal
// precision of the payment token, used only for rendering human-unit amounts
// in reports. sendDeadline bounds the whole sendTransaction pipeline; zero
// means no deadline beyond the caller's context.
func NewService(rail Rail, cat catalog.Reader, granter Granter, store Store, mintDecimals int, sendDeadline time.Duration, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		rail:         rail,
		catalog:      cat,
		granter:      granter,
		store:        store,
		mintDecimals: mintDecimals,
		sendDeadline: sendDeadline,
		metrics:      m,
		logger:       logger,
	}
}

// CreateTransaction builds an unsigned draft transaction paying for the
// given dataset. Free or unfetchable datasets short-circuit before any
// transaction construction.
func (s *Service) CreateTransaction(ctx context.Context, datasetID, signer string) (string, error) {
	ds, err := s.catalog.GetDataset(ctx, datasetID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to fetch dataset for draft",
			"dataset_id", datasetID,
			"error", err,
		)
		return "", fmt.Errorf("%w: %v", ErrDatasetNotPayable, err)
	}
	if ds.Price == "" {
		return "", fmt.Errorf("%w: dataset %s has no price", ErrDatasetNotPayable, datasetID)
	}

	draft, err := s.rail.BuildDraft(ctx, ds, datasetID, signer)
	if err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "draft transaction created",
		"dataset_id", datasetID,
		"signer", signer,
		"price", ds.Price,
	)
	return draft, nil
}

// SendTransaction drives a signed transaction to finality, validates the
// settled transfer against the dataset's declared terms, grants permissions,
// and records the ledger row. Grants and the ledger insert happen only after
// validation succeeds; a failed grant blocks the insert. A duplicate ledger
// row is treated as already-processed and reported as success so client
// retries are idempotent.
func (s *Service) SendTransaction(ctx context.Context, datasetID, signedTx string) (string, error) {
	if s.sendDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.sendDeadline)
		defer cancel()
	}
	start := time.Now()

	sig, err := s.rail.BroadcastAndConfirm(ctx, signedTx)
	if err != nil {
		return "", err
	}

	settlement, err := s.rail.ValidateSettlement(ctx, sig, datasetID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordPaymentValidated("error")
		}
		return "", err
	}
	p := settlement.Payment
	if s.metrics != nil {
		s.metrics.RecordPaymentValidated("success")
	}

	hashes, err := s.granter.Grant(ctx, p.Seller, p.Signer, p.DatasetID, settlement.TimeseriesIDs, p.Signature)
	if err != nil {
		// The payment is verified but access is not guaranteed; do not
		// record the transaction. Reconciliation happens out of band.
		s.logger.ErrorContext(ctx, "permission grant fan-out failed after verified payment",
			"signature", p.Signature,
			"dataset_id", p.DatasetID,
			"signer", p.Signer,
			"seller", p.Seller,
			"amount", p.Amount,
			"error", err,
		)
		return "", fmt.Errorf("%w: %v", ErrPublish, err)
	}
	if s.metrics != nil {
		s.metrics.RecordGrantsPublished(len(hashes))
	}

	txn := &Transaction{Payment: *p, PermissionHashes: hashes}
	if err := s.store.RecordTransaction(ctx, txn); err != nil {
		if errors.Is(err, ErrLedgerConflict) {
			s.logger.InfoContext(ctx, "transaction already recorded, treating as success",
				"signature", p.Signature,
			)
			return sig, nil
		}
		return "", fmt.Errorf("failed to record transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "payment completed",
		"signature", p.Signature,
		"dataset_id", p.DatasetID,
		"signer", p.Signer,
		"seller", p.Seller,
		"amount", p.Amount,
		"permissions", len(hashes),
		"duration", time.Since(start).String(),
	)
	return sig, nil
}

// GetTransactions returns all ledger rows involving the address as buyer or
// seller, with amounts rendered in human units, plus sale aggregates.
func (s *Service) GetTransactions(ctx context.Context, address string) (*ActivityReport, error) {
	purchases, err := s.store.ListTransactionsBySigner(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	sales, err := s.store.ListTransactionsBySeller(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}

	report := &ActivityReport{
		Purchases:    make([]*Transaction, len(purchases)),
		Sales:        make([]*Transaction, len(sales)),
		DatasetSales: make(map[string]DatasetSales),
	}

	for i, txn := range purchases {
		report.Purchases[i] = humanized(txn, s.mintDecimals)
	}

	totalProfit := new(big.Int)
	for i, txn := range sales {
		report.Sales[i] = humanized(txn, s.mintDecimals)

		raw, ok := new(big.Int).SetString(txn.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("ledger row %s has malformed amount %q", txn.Signature, txn.Amount)
		}
		totalProfit.Add(totalProfit, raw)

		ds := report.DatasetSales[txn.DatasetID]
		ds.Sales++
		prev, _ := new(big.Rat).SetString(ds.Profit)
		if prev == nil {
			prev = new(big.Rat)
		}
		prev.Add(prev, rawToHuman(raw, s.mintDecimals))
		ds.Profit = ratString(prev, s.mintDecimals)
		report.DatasetSales[txn.DatasetID] = ds

		report.TotalSales++
	}
	report.TotalProfit = ratString(rawToHuman(totalProfit, s.mintDecimals), s.mintDecimals)

	return report, nil
}

// humanized returns a copy of the transaction with the amount converted from
// raw smallest units to human units. Ledger rows themselves stay raw.
func humanized(txn *Transaction, decimals int) *Transaction {
	out := *txn
	if raw, ok := new(big.Int).SetString(txn.Amount, 10); ok {
		out.Amount = ratString(rawToHuman(raw, decimals), decimals)
	}
	return &out
}

func rawToHuman(raw *big.Int, decimals int) *big.Rat {
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Rat).SetFrac(new(big.Int).Set(raw), denom)
}

// ratString renders a rational in fixed decimal notation with trailing
// zeros trimmed ("2.500000" -> "2.5", "3.000000" -> "3").
func ratString(r *big.Rat, decimals int) string {
	s := r.FloatString(decimals)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "" {
		return "0"
	}
	return s
}
