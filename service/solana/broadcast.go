package solana

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/fishnet-hq/paygate/service/payment"
)

// BroadcastAndConfirm submits a signed, base64-serialized transaction and
// drives it to a confirmed commitment. Preflight is skipped and node-side
// retries are disabled; this loop owns resubmission, sending the identical
// bytes again whenever a confirmation window elapses. The signature never
// changes across resubmits, so the transfer lands at most once regardless of
// how many submissions race.
//
// The loop ends when the transaction confirms, the blockhash expires, or the
// context is done.
func (r *Rail) BroadcastAndConfirm(ctx context.Context, signedTx string) (string, error) {
	sig, err := r.broadcastAndConfirm(ctx, signedTx)
	if r.metrics != nil {
		switch {
		case err == nil:
			r.metrics.RecordConfirmation("confirmed")
		case ctx.Err() != nil:
			r.metrics.RecordConfirmation("canceled")
		default:
			r.metrics.RecordConfirmation("failed")
		}
	}
	return sig, err
}

func (r *Rail) broadcastAndConfirm(ctx context.Context, signedTx string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(signedTx)
	if err != nil {
		return "", fmt.Errorf("%w: transaction is not valid base64: %v", payment.ErrInputInvalid, err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return "", fmt.Errorf("%w: failed to deserialize transaction: %v", payment.ErrInputInvalid, err)
	}
	if len(tx.Signatures) == 0 || tx.Signatures[0].IsZero() {
		return "", fmt.Errorf("%w: transaction is not signed", payment.ErrInputInvalid)
	}
	sig := tx.Signatures[0]

	// Bound the loop by blockhash validity. The transaction's own blockhash
	// is at most as fresh as the current one, so this height is a safe upper
	// bound on how long the transaction can still land.
	latest, err := r.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return "", fmt.Errorf("failed to get blockhash validity bound: %w", err)
	}
	lastValidHeight := latest.Value.LastValidBlockHeight

	maxRetries := uint(0)
	sendOpts := rpc.TransactionOpts{
		SkipPreflight: true,
		MaxRetries:    &maxRetries,
	}

	if _, err := r.rpc.SendRawTransactionWithOpts(ctx, raw, sendOpts); err != nil {
		return "", fmt.Errorf("failed to submit transaction: %w", err)
	}
	r.logger.InfoContext(ctx, "transaction submitted", "signature", sig.String())

	ticker := time.NewTicker(r.opts.ConfirmPollInterval)
	defer ticker.Stop()
	window := time.NewTimer(r.opts.ConfirmTimeout)
	defer window.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", payment.ErrConfirmationFailed, ctx.Err())

		case <-window.C:
			// The window elapsed without a confirmation; resubmit the same
			// bytes and open a fresh window, unless the blockhash is spent.
			height, err := r.rpc.GetBlockHeight(ctx, rpc.CommitmentConfirmed)
			if err == nil && height > lastValidHeight {
				return "", fmt.Errorf("%w: blockhash expired at height %d", payment.ErrConfirmationFailed, height)
			}
			if _, err := r.rpc.SendRawTransactionWithOpts(ctx, raw, sendOpts); err != nil {
				r.logger.WarnContext(ctx, "resubmission failed",
					"signature", sig.String(),
					"error", err,
				)
			} else if r.metrics != nil {
				r.metrics.RecordBroadcastResubmit()
			}
			window.Reset(r.opts.ConfirmTimeout)

		case <-ticker.C:
			statuses, err := r.rpc.GetSignatureStatuses(ctx, false, sig)
			if err != nil {
				r.logger.WarnContext(ctx, "signature status poll failed",
					"signature", sig.String(),
					"error", err,
				)
				continue
			}
			if len(statuses.Value) == 0 || statuses.Value[0] == nil {
				continue
			}
			status := statuses.Value[0]
			if status.Err != nil {
				return "", fmt.Errorf("%w: transaction failed on chain: %v", payment.ErrConfirmationFailed, status.Err)
			}
			switch status.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				r.logger.InfoContext(ctx, "transaction confirmed",
					"signature", sig.String(),
					"commitment", string(status.ConfirmationStatus),
				)
				return sig.String(), nil
			}
		}
	}
}
