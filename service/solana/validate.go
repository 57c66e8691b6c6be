package solana

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/fishnet-hq/paygate/service/payment"
)

// ValidateSettlement independently re-derives the payment facts from the
// settled transaction and cross-checks them against the dataset's current
// declared terms. Nothing from the original request is trusted: the amount,
// the payee, the currency, and both reference accounts are read back from
// the chain and compared against a fresh catalog fetch.
func (r *Rail) ValidateSettlement(ctx context.Context, signature, datasetID string) (*payment.Settlement, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("%w: signature %q is not valid base58: %v", payment.ErrInputInvalid, signature, err)
	}

	tx, err := r.fetchSettled(ctx, sig)
	if err != nil {
		return nil, err
	}

	// The transfer is by convention the last instruction; everything before
	// it is compute budget.
	if len(tx.Message.Instructions) == 0 {
		return nil, fmt.Errorf("%w: transaction has no instructions", payment.ErrInputInvalid)
	}
	ix := tx.Message.Instructions[len(tx.Message.Instructions)-1]

	keys := tx.Message.AccountKeys
	programID, err := accountAt(keys, ix.ProgramIDIndex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrInputInvalid, err)
	}
	if !programID.Equals(solana.TokenProgramID) {
		return nil, fmt.Errorf("%w: final instruction targets %s, not the token program", payment.ErrInputInvalid, programID)
	}
	if len(ix.Data) != 10 || ix.Data[0] != tokenTransferCheckedOpcode {
		return nil, fmt.Errorf("%w: final instruction is not a checked transfer", payment.ErrInputInvalid)
	}
	amount := binary.LittleEndian.Uint64(ix.Data[1:9])
	decimals := ix.Data[9]

	if len(ix.Accounts) < transferAccountCount {
		return nil, fmt.Errorf("%w: transfer carries %d accounts, need %d", payment.ErrInputInvalid, len(ix.Accounts), transferAccountCount)
	}
	var accounts [transferAccountCount]solana.PublicKey
	for i := range accounts {
		accounts[i], err = accountAt(keys, ix.Accounts[i])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", payment.ErrInputInvalid, err)
		}
	}
	source := accounts[accountSource]
	mint := accounts[accountMint]
	destination := accounts[accountDestination]
	authority := accounts[accountAuthority]
	datasetRef := accounts[accountDatasetReference]
	appRef := accounts[accountAppReference]

	// Fresh catalog fetch; the dataset's terms at validation time are what
	// the payment is held against.
	ds, err := r.catalog.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrDatasetNotPayable, err)
	}
	if ds.Price == "" {
		return nil, fmt.Errorf("%w: dataset %s has no price", payment.ErrDatasetNotPayable, datasetID)
	}

	expectedDatasetRef, err := DeriveDatasetReference(datasetID)
	if err != nil {
		return nil, err
	}
	expectedAppRef, err := DeriveAppReference(r.appSeed)
	if err != nil {
		return nil, err
	}
	if !datasetRef.Equals(expectedDatasetRef) {
		r.logger.WarnContext(ctx, "settled transfer carries the wrong dataset reference",
			"signature", signature,
			"dataset_id", datasetID,
			"reference", datasetRef.String(),
			"expected", expectedDatasetRef.String(),
			"amount", amount,
			"source", source.String(),
			"destination", destination.String(),
		)
		return nil, fmt.Errorf("%w: dataset reference %s, expected %s", payment.ErrWrongReference, datasetRef, expectedDatasetRef)
	}
	if !appRef.Equals(expectedAppRef) {
		r.logger.WarnContext(ctx, "settled transfer carries the wrong app reference",
			"signature", signature,
			"dataset_id", datasetID,
			"reference", appRef.String(),
			"expected", expectedAppRef.String(),
			"amount", amount,
			"source", source.String(),
			"destination", destination.String(),
		)
		return nil, fmt.Errorf("%w: app reference %s, expected %s", payment.ErrWrongReference, appRef, expectedAppRef)
	}

	if !mint.Equals(r.mint) {
		return nil, fmt.Errorf("%w: paid in mint %s, expected %s", payment.ErrAmountMismatch, mint, r.mint)
	}

	// TransferChecked enforces on chain that the asserted decimals equal the
	// mint's, so the instruction byte is authoritative here.
	expected, err := RawAmount(ds.Price, decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: dataset price: %v", payment.ErrDatasetNotPayable, err)
	}
	if amount != expected {
		r.logger.WarnContext(ctx, "settled amount does not match dataset price",
			"signature", signature,
			"dataset_id", datasetID,
			"paid", amount,
			"expected", expected,
			"price", ds.Price,
			"decimals", decimals,
		)
		return nil, fmt.Errorf("%w: paid %d, expected %d", payment.ErrAmountMismatch, amount, expected)
	}

	sourceAcct, err := r.tokenAccount(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("%w: source token account %s: %v", payment.ErrInputInvalid, source, err)
	}
	destAcct, err := r.tokenAccount(ctx, destination)
	if err != nil {
		return nil, fmt.Errorf("%w: destination token account %s: %v", payment.ErrInputInvalid, destination, err)
	}
	if destAcct.Owner.String() != ds.Owner {
		r.logger.WarnContext(ctx, "settled funds went to someone other than the dataset owner",
			"signature", signature,
			"dataset_id", datasetID,
			"paid_to", destAcct.Owner.String(),
			"dataset_owner", ds.Owner,
			"amount", amount,
			"signer", authority.String(),
			"destination", destination.String(),
		)
		return nil, fmt.Errorf("%w: funds went to %s, dataset owner is %s", payment.ErrWrongSeller, destAcct.Owner, ds.Owner)
	}
	if !sourceAcct.Owner.Equals(authority) {
		return nil, fmt.Errorf("%w: transfer authority %s does not own the source account", payment.ErrInputInvalid, authority)
	}

	p := &payment.Payment{
		Signature:   signature,
		DatasetID:   datasetID,
		DatasetName: ds.Name,
		Signer:      authority.String(),
		Seller:      destAcct.Owner.String(),
		Currency:    mint.String(),
		Amount:      strconv.FormatUint(amount, 10),
		Timestamp:   time.Now().UTC(),
	}

	r.logger.InfoContext(ctx, "settlement validated",
		"signature", signature,
		"dataset_id", datasetID,
		"signer", p.Signer,
		"seller", p.Seller,
		"amount", p.Amount,
	)

	return &payment.Settlement{
		Payment:       p,
		TimeseriesIDs: ds.TimeseriesIDs,
	}, nil
}

// fetchSettled retrieves the settled transaction, retrying on a constant
// interval because a just-confirmed transaction can lag behind the RPC
// node's transaction index.
func (r *Rail) fetchSettled(ctx context.Context, sig solana.Signature) (*solana.Transaction, error) {
	maxVersion := uint64(0)
	opts := &rpc.GetTransactionOpts{
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	}

	operation := func() (*solana.Transaction, error) {
		result, err := r.rpc.GetTransaction(ctx, sig, opts)
		if err != nil {
			return nil, fmt.Errorf("transaction not yet available: %w", err)
		}
		if result == nil || result.Transaction == nil {
			return nil, fmt.Errorf("transaction not yet available")
		}
		if result.Meta != nil && result.Meta.Err != nil {
			return nil, backoff.Permanent(fmt.Errorf("%w: transaction failed on chain: %v", payment.ErrConfirmationFailed, result.Meta.Err))
		}
		tx, err := result.Transaction.GetTransaction()
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to decode settled transaction: %w", err))
		}
		return tx, nil
	}

	tx, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(r.opts.SettlementFetchInterval)),
		backoff.WithMaxTries(uint(r.opts.SettlementFetchAttempts)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch settled transaction %s: %w", sig, err)
	}
	return tx, nil
}

// accountAt bounds-checks an instruction account index against the message
// account table.
func accountAt(keys []solana.PublicKey, idx uint16) (solana.PublicKey, error) {
	if int(idx) >= len(keys) {
		return solana.PublicKey{}, fmt.Errorf("account index %d out of range", idx)
	}
	return keys[idx], nil
}
