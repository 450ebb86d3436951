package svm

import (
	"context"
	"time"

	"github.com/x402-facilitator/facilitator/chain"
)

type fakeSvmChain struct {
	tx          *chain.SvmTransaction
	decodeErr   error
	decimals    uint8
	decimalsErr error
	simResult   *chain.SvmSimulationResult
	simErr      error
	signature            string
	lastValidBlockHeight uint64
	sendErr              error
	confirm              *chain.SvmConfirmation
	confirmErr           error
}

func (f *fakeSvmChain) DecodeTransaction(base64Tx string) (*chain.SvmTransaction, error) {
	return f.tx, f.decodeErr
}

func (f *fakeSvmChain) MintDecimals(ctx context.Context, mint string) (uint8, error) {
	return f.decimals, f.decimalsErr
}

func (f *fakeSvmChain) TokenBalance(ctx context.Context, tokenAccount string) (uint64, error) {
	return 0, nil
}

func (f *fakeSvmChain) Simulate(ctx context.Context, tx *chain.SvmTransaction, feePayer chain.SvmFeePayer) (*chain.SvmSimulationResult, error) {
	return f.simResult, f.simErr
}

func (f *fakeSvmChain) Send(ctx context.Context, tx *chain.SvmTransaction, feePayer chain.SvmFeePayer) (string, uint64, error) {
	return f.signature, f.lastValidBlockHeight, f.sendErr
}

func (f *fakeSvmChain) Confirm(ctx context.Context, signature string, lastValidBlockHeight uint64, timeout time.Duration) (*chain.SvmConfirmation, error) {
	return f.confirm, f.confirmErr
}

var _ chain.SvmChain = (*fakeSvmChain)(nil)

type fakeFeePayer struct{ pubkey string }

func (f fakeFeePayer) PublicKey() string { return f.pubkey }
func (f fakeFeePayer) Sign(message []byte) ([]byte, error) { return make([]byte, 64), nil }
