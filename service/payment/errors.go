package payment

import "errors"

// Error taxonomy for the payment lifecycle. Handlers map these to HTTP
// statuses with errors.Is; everything else is an internal error.
var (
	// ErrInputInvalid indicates a malformed address, signature, dataset id,
	// or serialized transaction. Detected before broadcast, no side effects.
	ErrInputInvalid = errors.New("invalid input")

	// ErrUnknownSigner indicates the signer's wallet account does not exist
	// on chain.
	ErrUnknownSigner = errors.New("signer account not found")

	// ErrAccountNotReady indicates a missing, uninitialized, or frozen token
	// account on either side of the transfer.
	ErrAccountNotReady = errors.New("token account not ready")

	// ErrInsufficientFunds indicates the payer's token account balance is
	// below the dataset price.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDatasetNotPayable indicates the dataset is free (no price) or could
	// not be fetched; the payment path must short-circuit.
	ErrDatasetNotPayable = errors.New("dataset is free or unavailable")

	// ErrAmountMismatch, ErrWrongReference, and ErrWrongSeller are the three
	// post-settlement integrity checks. Money has already moved when these
	// fire: they are logged with full transaction context and no access is
	// granted; reconciliation is out of band.
	ErrAmountMismatch = errors.New("transferred amount does not match dataset price")
	ErrWrongReference = errors.New("transaction reference does not match dataset or application")
	ErrWrongSeller    = errors.New("destination owner does not match dataset owner")

	// ErrConfirmationFailed indicates the transaction's block-height validity
	// window expired before a confirmation was observed.
	ErrConfirmationFailed = errors.New("transaction confirmation failed")

	// ErrPublish indicates the permission grant fan-out failed; the ledger
	// insert must not happen.
	ErrPublish = errors.New("permission publish failed")

	// ErrLedgerConflict indicates a ledger row for this signature already
	// exists. Callers treat it as already-processed, not as a failure.
	ErrLedgerConflict = errors.New("transaction already recorded")
)
