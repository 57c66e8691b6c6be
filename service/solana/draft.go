package solana

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/fishnet-hq/paygate/service/catalog"
	"github.com/fishnet-hq/paygate/service/payment"
)

// BuildDraft assembles an unsigned TransferChecked transaction paying the
// dataset's owner its declared price, with the dataset and application
// reference accounts appended and a compute budget prepended. The result is
// base64 of the serialized transaction, ready for the buyer's wallet to sign.
// The server never holds a key and never signs.
func (r *Rail) BuildDraft(ctx context.Context, ds *catalog.Dataset, datasetID, signer string) (string, error) {
	draft, err := r.buildDraft(ctx, ds, datasetID, signer)
	if r.metrics != nil {
		if err != nil {
			r.metrics.RecordDraftBuilt("error")
		} else {
			r.metrics.RecordDraftBuilt("success")
		}
	}
	return draft, err
}

func (r *Rail) buildDraft(ctx context.Context, ds *catalog.Dataset, datasetID, signer string) (string, error) {
	payer, err := solana.PublicKeyFromBase58(signer)
	if err != nil {
		return "", fmt.Errorf("%w: signer %q is not a valid address: %v", payment.ErrInputInvalid, signer, err)
	}
	seller, err := solana.PublicKeyFromBase58(ds.Owner)
	if err != nil {
		return "", fmt.Errorf("%w: dataset owner %q is not a valid address: %v", payment.ErrInputInvalid, ds.Owner, err)
	}

	datasetRef, err := DeriveDatasetReference(datasetID)
	if err != nil {
		return "", err
	}
	appRef, err := DeriveAppReference(r.appSeed)
	if err != nil {
		return "", err
	}

	// The signer must be a funded account before we go any further; a typo'd
	// address would otherwise produce a draft nobody can ever sign usefully.
	payerInfo, err := r.rpc.GetAccountInfo(ctx, payer)
	if err != nil || payerInfo == nil || payerInfo.Value == nil {
		return "", fmt.Errorf("%w: account %s not found on chain", payment.ErrUnknownSigner, signer)
	}

	decimals, err := r.mintDecimals(ctx)
	if err != nil {
		return "", err
	}

	amount, err := RawAmount(ds.Price, decimals)
	if err != nil {
		return "", err
	}

	source, _, err := solana.FindAssociatedTokenAddress(payer, r.mint)
	if err != nil {
		return "", fmt.Errorf("failed to derive source token account: %w", err)
	}
	destination, _, err := solana.FindAssociatedTokenAddress(seller, r.mint)
	if err != nil {
		return "", fmt.Errorf("failed to derive destination token account: %w", err)
	}

	sourceAcct, err := r.tokenAccount(ctx, source)
	if err != nil {
		return "", fmt.Errorf("%w: source token account %s: %v", payment.ErrAccountNotReady, source, err)
	}
	if sourceAcct.Amount < amount {
		return "", fmt.Errorf("%w: balance %d, need %d", payment.ErrInsufficientFunds, sourceAcct.Amount, amount)
	}
	if _, err := r.tokenAccount(ctx, destination); err != nil {
		return "", fmt.Errorf("%w: destination token account %s: %v", payment.ErrAccountNotReady, destination, err)
	}

	transfer := buildTransferInstruction(source, r.mint, destination, payer, datasetRef, appRef, amount, decimals)

	// Simulate the unbudgeted draft to size the compute limit; the blockhash
	// is replaced server-side during simulation so a placeholder is fine.
	simTx, err := solana.NewTransactionBuilder().
		AddInstruction(transfer).
		SetFeePayer(payer).
		SetRecentBlockHash(solana.Hash{}).
		Build()
	if err != nil {
		return "", fmt.Errorf("failed to build simulation transaction: %w", err)
	}
	est := r.estimateFees(ctx, simTx, solana.PublicKeySlice{source, destination})

	priceIx, err := computebudget.NewSetComputeUnitPriceInstructionBuilder().
		SetMicroLamports(est.priorityFeeRate).
		ValidateAndBuild()
	if err != nil {
		return "", fmt.Errorf("failed to build compute unit price instruction: %w", err)
	}
	limitIx, err := computebudget.NewSetComputeUnitLimitInstructionBuilder().
		SetUnits(est.computeUnitLimit).
		ValidateAndBuild()
	if err != nil {
		return "", fmt.Errorf("failed to build compute unit limit instruction: %w", err)
	}

	blockhash, err := r.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	// The transfer goes last; the validator relies on that position.
	tx, err := solana.NewTransactionBuilder().
		AddInstruction(priceIx).
		AddInstruction(limitIx).
		AddInstruction(transfer).
		SetFeePayer(payer).
		SetRecentBlockHash(blockhash.Value.Blockhash).
		Build()
	if err != nil {
		return "", fmt.Errorf("failed to build transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}

	r.logger.DebugContext(ctx, "draft transaction assembled",
		"dataset_id", datasetID,
		"signer", signer,
		"seller", ds.Owner,
		"amount", amount,
		"priority_fee_rate", est.priorityFeeRate,
		"compute_unit_limit", est.computeUnitLimit,
	)

	return base64.StdEncoding.EncodeToString(raw), nil
}

// mintDecimals fetches and decodes the payment mint to read its decimal
// precision from chain rather than trusting configuration.
func (r *Rail) mintDecimals(ctx context.Context) (uint8, error) {
	info, err := r.rpc.GetAccountInfo(ctx, r.mint)
	if err != nil || info == nil || info.Value == nil {
		return 0, fmt.Errorf("failed to fetch mint %s: %w", r.mint, err)
	}
	var mint token.Mint
	if err := bin.NewBinDecoder(info.Value.Data.GetBinary()).Decode(&mint); err != nil {
		return 0, fmt.Errorf("failed to decode mint %s: %w", r.mint, err)
	}
	if !mint.IsInitialized {
		return 0, fmt.Errorf("mint %s is not initialized", r.mint)
	}
	return mint.Decimals, nil
}

// tokenAccount fetches and decodes a token account, rejecting accounts that
// are missing, owned by the wrong program, uninitialized, or frozen.
func (r *Rail) tokenAccount(ctx context.Context, addr solana.PublicKey) (*token.Account, error) {
	info, err := r.rpc.GetAccountInfo(ctx, addr)
	if err != nil || info == nil || info.Value == nil {
		return nil, fmt.Errorf("account not found")
	}
	if !info.Value.Owner.Equals(solana.TokenProgramID) {
		return nil, fmt.Errorf("account is not owned by the token program")
	}
	var acct token.Account
	if err := bin.NewBinDecoder(info.Value.Data.GetBinary()).Decode(&acct); err != nil {
		return nil, fmt.Errorf("failed to decode token account: %w", err)
	}
	switch acct.State {
	case token.Initialized:
		return &acct, nil
	case token.Frozen:
		return nil, fmt.Errorf("account is frozen")
	default:
		return nil, fmt.Errorf("account is not initialized")
	}
}

// buildTransferInstruction constructs a TransferChecked instruction with the
// two reference accounts appended as non-signing read-only metas. The
// standard token builder cannot express the trailing accounts, so the
// instruction is assembled by hand.
func buildTransferInstruction(source, mint, destination, authority, datasetRef, appRef solana.PublicKey, amount uint64, decimals uint8) solana.Instruction {
	data := make([]byte, 10)
	data[0] = tokenTransferCheckedOpcode
	binary.LittleEndian.PutUint64(data[1:9], amount)
	data[9] = decimals

	accounts := solana.AccountMetaSlice{
		solana.Meta(source).WRITE(),
		solana.Meta(mint),
		solana.Meta(destination).WRITE(),
		solana.Meta(authority).SIGNER(),
		solana.Meta(datasetRef),
		solana.Meta(appRef),
	}

	return solana.NewInstruction(solana.TokenProgramID, accounts, data)
}
