package chain

import (
	"context"
	"errors"
	"time"
)

// ErrSvmBlockHeightExceeded is returned by SvmChain.Confirm when the chain's
// block height has passed the broadcast transaction's last valid block height
// before a confirmation was observed — the transaction's blockhash expired
// and it can no longer land, distinct from a confirmation that simply hasn't
// arrived yet.
var ErrSvmBlockHeightExceeded = errors.New("svm transaction block height exceeded")

// SvmInstructionKind classifies one instruction of a decoded SVM transaction for
// the shape check the verifier runs before introspecting amounts.
type SvmInstructionKind string

const (
	SvmInstructionComputeBudgetLimit SvmInstructionKind = "compute_budget_set_unit_limit"
	SvmInstructionComputeBudgetPrice SvmInstructionKind = "compute_budget_set_unit_price"
	SvmInstructionATACreate          SvmInstructionKind = "ata_create"
	SvmInstructionTransferChecked    SvmInstructionKind = "transfer_checked"
	SvmInstructionOther              SvmInstructionKind = "other"
)

// SvmTransferChecked is a parsed SPL Token TransferChecked instruction.
type SvmTransferChecked struct {
	Mint        string
	Source      string
	Destination string
	Owner       string
	Amount      uint64
	Decimals    uint8
}

// SvmInstruction is one instruction of a decoded transaction, tagged by kind with
// the TransferChecked payload populated when Kind is SvmInstructionTransferChecked.
type SvmInstruction struct {
	Kind            SvmInstructionKind
	TransferChecked *SvmTransferChecked
}

// SvmTransaction is a decoded partially-signed SVM transaction. Raw holds the
// underlying solana-go transaction value; it is opaque here so this package stays
// free of a solana-go dependency, and is type-asserted back by the mechanisms/svm
// implementation that produced it.
type SvmTransaction struct {
	Instructions    []SvmInstruction
	FeePayer        string
	RecentBlockhash string
	Raw             interface{}
}

// SvmSimulationResult is the outcome of simulating a transaction.
type SvmSimulationResult struct {
	Err  string
	Logs []string
}

// SvmConfirmation is the outcome of waiting for a transaction signature to land.
type SvmConfirmation struct {
	Err  string
	Slot uint64
}

// SvmFeePayer signs transactions as the facilitator's fee-paying wallet.
type SvmFeePayer interface {
	PublicKey() string
	Sign(message []byte) ([]byte, error)
}

// SvmChain is the facilitator's view of a Solana RPC endpoint: transaction
// decoding, mint/account introspection, fee-payer substitution with
// recent-blockhash replacement, simulation, broadcast, and confirmation.
type SvmChain interface {
	DecodeTransaction(base64Tx string) (*SvmTransaction, error)
	MintDecimals(ctx context.Context, mint string) (uint8, error)
	TokenBalance(ctx context.Context, tokenAccount string) (uint64, error)

	// Simulate replaces tx's fee payer with feePayer and its recent blockhash with
	// a current one, then simulates with signature verification disabled.
	Simulate(ctx context.Context, tx *SvmTransaction, feePayer SvmFeePayer) (*SvmSimulationResult, error)

	// Send replaces tx's fee payer with feePayer, signs it, and broadcasts it.
	// lastValidBlockHeight is the block height past which the transaction's
	// blockhash is no longer valid, for Confirm to distinguish expiry from a
	// plain polling timeout.
	Send(ctx context.Context, tx *SvmTransaction, feePayer SvmFeePayer) (signature string, lastValidBlockHeight uint64, err error)

	// Confirm polls for signature's confirmation until it lands or timeout
	// elapses. If the chain's block height passes lastValidBlockHeight first,
	// it returns ErrSvmBlockHeightExceeded instead of a plain timeout error.
	Confirm(ctx context.Context, signature string, lastValidBlockHeight uint64, timeout time.Duration) (*SvmConfirmation, error)
}
