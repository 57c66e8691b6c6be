package solana

import (
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/fishnet-hq/paygate/service/catalog"
	"github.com/fishnet-hq/paygate/service/metrics"
)

// tokenTransferCheckedOpcode is the SPL token program instruction index for
// TransferChecked.
const tokenTransferCheckedOpcode = 12

// Account positions within the transfer instruction. The two reference
// accounts trail the standard TransferChecked accounts and carry no lamports;
// they exist only to make the transfer attributable on chain.
const (
	accountSource = iota
	accountMint
	accountDestination
	accountAuthority
	accountDatasetReference
	accountAppReference

	transferAccountCount
)

// Options tunes the rail's fee estimation and confirmation behavior. Zero
// values fall back to the defaults below.
type Options struct {
	// ConfirmTimeout is the window a submitted transaction gets to reach a
	// confirmed commitment before the identical bytes are resubmitted.
	ConfirmTimeout time.Duration

	// ConfirmPollInterval is the signature status poll cadence.
	ConfirmPollInterval time.Duration

	// SettlementFetchInterval and SettlementFetchAttempts bound the retry
	// loop that waits for a confirmed transaction to become fetchable.
	SettlementFetchInterval time.Duration
	SettlementFetchAttempts int

	// DefaultPriorityFeeRate is the micro-lamports-per-compute-unit price
	// used when the recent fee data is unavailable or empty.
	DefaultPriorityFeeRate uint64

	// DefaultComputeUnitLimit caps the compute budget and serves as the
	// fallback when simulation fails.
	DefaultComputeUnitLimit uint32
}

func (o *Options) applyDefaults() {
	if o.ConfirmTimeout <= 0 {
		o.ConfirmTimeout = 2 * time.Second
	}
	if o.ConfirmPollInterval <= 0 {
		o.ConfirmPollInterval = 500 * time.Millisecond
	}
	if o.SettlementFetchInterval <= 0 {
		o.SettlementFetchInterval = 2 * time.Second
	}
	if o.SettlementFetchAttempts <= 0 {
		o.SettlementFetchAttempts = 30
	}
	if o.DefaultPriorityFeeRate == 0 {
		o.DefaultPriorityFeeRate = 5000
	}
	if o.DefaultComputeUnitLimit == 0 || o.DefaultComputeUnitLimit > maxComputeUnitLimit {
		o.DefaultComputeUnitLimit = maxComputeUnitLimit
	}
}

// maxComputeUnitLimit is the network-wide per-transaction compute ceiling.
const maxComputeUnitLimit = 1_400_000

// Rail implements the payment.Rail surface for SPL token transfers. It is
// stateless between calls; every operation re-derives what it needs from the
// chain and the dataset catalog.
type Rail struct {
	rpc     RPCClient
	catalog catalog.Reader
	mint    solana.PublicKey
	appSeed string
	opts    Options
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRail creates a Solana payment rail paying in the given mint. appSeed is
// the fixed seed of the application reference account appended to every
// transfer. The metrics parameter may be nil.
func NewRail(rpc RPCClient, cat catalog.Reader, mint solana.PublicKey, appSeed string, opts Options, m *metrics.Metrics, logger *slog.Logger) *Rail {
	opts.applyDefaults()
	return &Rail{
		rpc:     rpc,
		catalog: cat,
		mint:    mint,
		appSeed: appSeed,
		opts:    opts,
		metrics: m,
		logger:  logger,
	}
}
