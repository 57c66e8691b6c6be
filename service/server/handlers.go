package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"unicode"

	"github.com/fishnet-hq/paygate/service/catalog"
	"github.com/fishnet-hq/paygate/service/payment"
)

const (
	maxAddressLength   = 100 // Solana addresses are 44 chars, give buffer
	maxDatasetIDLength = 128 // hex content hashes are 64 chars, give buffer

	// A serialized transaction is bounded by the 1232-byte packet limit;
	// base64 plus JSON framing stays well under this.
	maxRequestBodyBytes = 8 * 1024
)

var (
	validAddressRegex   = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
	validDatasetIDRegex = regexp.MustCompile(`^[0-9a-fA-F]+$`)
)

// handleCreateTransaction returns a handler that builds an unsigned draft
// transaction for a dataset purchase.
// GET /solana/createTransaction?datasetId={id}&signer={address}
func handleCreateTransaction(svc *payment.Service, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		datasetID := r.URL.Query().Get("datasetId")
		signer := r.URL.Query().Get("signer")

		if err := validateDatasetID(datasetID); err != nil {
			logger.Debug("invalid dataset id", "dataset_id", datasetID, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateAddress(signer); err != nil {
			logger.Debug("invalid signer", "signer", signer, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		draft, err := svc.CreateTransaction(r.Context(), datasetID, signer)
		if err != nil {
			writePaymentError(w, r, logger, "failed to create transaction", err)
			return
		}

		writeJSON(w, map[string]interface{}{
			"transaction": draft,
		}, http.StatusOK)
	})
}

// sendTransactionRequest is the body of POST /solana/sendTransaction.
type sendTransactionRequest struct {
	DatasetID   string `json:"datasetId"`
	Transaction string `json:"transaction"`
}

// handleSendTransaction returns a handler that broadcasts a signed
// transaction, validates the settlement, grants permissions, and records the
// ledger row.
// POST /solana/sendTransaction
func handleSendTransaction(svc *payment.Service, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sendTransactionRequest
		body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			logger.Debug("invalid request body", "error", err)
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if err := validateDatasetID(req.DatasetID); err != nil {
			logger.Debug("invalid dataset id", "dataset_id", req.DatasetID, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Transaction == "" {
			writeError(w, "transaction is required", http.StatusBadRequest)
			return
		}

		sig, err := svc.SendTransaction(r.Context(), req.DatasetID, req.Transaction)
		if err != nil {
			writePaymentError(w, r, logger, "failed to send transaction", err)
			return
		}

		writeJSON(w, map[string]interface{}{
			"message":   "success",
			"signature": sig,
		}, http.StatusOK)
	})
}

// handleGetTransactions returns a handler that reports ledger activity for
// an address as buyer and seller.
// GET /solana/getTransactions?address={address}
func handleGetTransactions(svc *payment.Service, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.URL.Query().Get("address")

		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		report, err := svc.GetTransactions(r.Context(), address)
		if err != nil {
			logger.Error("failed to get transactions", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, report, http.StatusOK)
	})
}

// writePaymentError maps the payment pipeline's sentinel errors onto HTTP
// status codes. Validation rejections are the client's problem; everything
// else is ours.
func writePaymentError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	switch {
	case errors.Is(err, payment.ErrInputInvalid),
		errors.Is(err, payment.ErrDatasetNotPayable),
		errors.Is(err, payment.ErrAccountNotReady),
		errors.Is(err, payment.ErrInsufficientFunds),
		errors.Is(err, payment.ErrAmountMismatch),
		errors.Is(err, payment.ErrWrongReference),
		errors.Is(err, payment.ErrWrongSeller),
		errors.Is(err, catalog.ErrNotFound):
		logger.Debug(msg, "error", err)
		writeError(w, err.Error(), http.StatusBadRequest)

	case errors.Is(err, payment.ErrUnknownSigner):
		logger.Debug(msg, "error", err)
		writeError(w, err.Error(), http.StatusNotFound)

	case errors.Is(err, payment.ErrConfirmationFailed):
		logger.ErrorContext(r.Context(), msg, "error", err)
		writeError(w, err.Error(), http.StatusBadGateway)

	default:
		logger.ErrorContext(r.Context(), msg, "error", err)
		writeError(w, "internal server error", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates a wallet address for security and format.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	// Check for null bytes and control characters
	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !validAddressRegex.MatchString(address) {
		return errorf("invalid address format: must contain only valid base58 characters")
	}

	return nil
}

// validateDatasetID validates a dataset content hash.
func validateDatasetID(id string) error {
	if id == "" {
		return errorf("datasetId is required")
	}

	if len(id) > maxDatasetIDLength {
		return errorf("datasetId too long: maximum length is %d characters", maxDatasetIDLength)
	}

	if !validDatasetIDRegex.MatchString(id) {
		return errorf("invalid datasetId format: must be a hex content hash")
	}

	return nil
}

func errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
