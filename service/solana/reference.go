package solana

import (
	"encoding/hex"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/fishnet-hq/paygate/service/payment"
)

// datasetReferenceSeed prefixes every dataset reference derivation.
const datasetReferenceSeed = "reference"

// DeriveDatasetReference deterministically derives the reference address for
// a dataset from its hex content hash. Any party holding the dataset id can
// recompute the same address, which is what lets the validator cross-check a
// settled transfer without trusting the request.
func DeriveDatasetReference(datasetID string) (solana.PublicKey, error) {
	raw, err := hex.DecodeString(datasetID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: dataset id %q is not hex: %v", payment.ErrInputInvalid, datasetID, err)
	}
	if len(raw) == 0 {
		return solana.PublicKey{}, fmt.Errorf("%w: dataset id is empty", payment.ErrInputInvalid)
	}

	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(datasetReferenceSeed), raw},
		solana.TokenProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive dataset reference: %w", err)
	}
	return addr, nil
}

// DeriveAppReference derives the application-wide reference address from a
// fixed seed. It is the same for every payment and marks the transfer as
// belonging to this marketplace.
func DeriveAppReference(seed string) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(seed)},
		solana.SystemProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive app reference: %w", err)
	}
	return addr, nil
}
