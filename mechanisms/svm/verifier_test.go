package svm

import (
	"context"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402-facilitator/facilitator"
	"github.com/x402-facilitator/facilitator/chain"
)

type svmFixture struct {
	mint    solana.PublicKey
	payTo   solana.PublicKey
	owner   solana.PublicKey
	dest    solana.PublicKey
	transfer *chain.SvmTransferChecked
}

func newSvmFixture(t *testing.T, amount uint64, decimals uint8) svmFixture {
	t.Helper()
	mint := solana.NewWallet().PublicKey()
	payTo := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()
	dest, _, err := solana.FindAssociatedTokenAddress(payTo, mint)
	require.NoError(t, err)

	return svmFixture{
		mint:  mint,
		payTo: payTo,
		owner: owner,
		dest:  dest,
		transfer: &chain.SvmTransferChecked{
			Mint:        mint.String(),
			Source:      solana.NewWallet().PublicKey().String(),
			Destination: dest.String(),
			Owner:       owner.String(),
			Amount:      amount,
			Decimals:    decimals,
		},
	}
}

func (f svmFixture) requirements(maxAmount string) x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme:            "exact",
		Network:           x402.NetworkSolana,
		Asset:             f.mint.String(),
		MaxAmountRequired: maxAmount,
		PayTo:             f.payTo.String(),
		Extra:             map[string]interface{}{"feePayer": solana.NewWallet().PublicKey().String()},
	}
}

func svmPayload() x402.PaymentPayload {
	return x402.PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     x402.NetworkSolana,
		Payload:     map[string]interface{}{"transaction": "ignored-by-fake-chain"},
	}
}

func TestVerifier_ValidTransferPasses(t *testing.T) {
	f := newSvmFixture(t, 2000, 6)
	tx := &chain.SvmTransaction{Instructions: []chain.SvmInstruction{
		{Kind: chain.SvmInstructionTransferChecked, TransferChecked: f.transfer},
	}}
	fake := &fakeSvmChain{tx: tx, decimals: 6, simResult: &chain.SvmSimulationResult{}}
	v := NewVerifier(fake)

	resp, err := v.Verify(context.Background(), svmPayload(), f.requirements("1000"))
	require.NoError(t, err)
	require.True(t, resp.IsValid)
	require.Equal(t, f.owner.String(), resp.Payer)
}

func TestVerifier_AmountBelowRequiredFails(t *testing.T) {
	f := newSvmFixture(t, 500, 6)
	tx := &chain.SvmTransaction{Instructions: []chain.SvmInstruction{
		{Kind: chain.SvmInstructionTransferChecked, TransferChecked: f.transfer},
	}}
	fake := &fakeSvmChain{tx: tx, decimals: 6, simResult: &chain.SvmSimulationResult{}}
	v := NewVerifier(fake)

	resp, err := v.Verify(context.Background(), svmPayload(), f.requirements("1000"))
	require.NoError(t, err)
	require.False(t, resp.IsValid)
	require.Equal(t, x402.ReasonInvalidSvmAmountMismatch, resp.InvalidReason)
}

func TestVerifier_DecimalsMismatchFails(t *testing.T) {
	f := newSvmFixture(t, 2000, 6)
	tx := &chain.SvmTransaction{Instructions: []chain.SvmInstruction{
		{Kind: chain.SvmInstructionTransferChecked, TransferChecked: f.transfer},
	}}
	fake := &fakeSvmChain{tx: tx, decimals: 9, simResult: &chain.SvmSimulationResult{}}
	v := NewVerifier(fake)

	resp, err := v.Verify(context.Background(), svmPayload(), f.requirements("1000"))
	require.NoError(t, err)
	require.False(t, resp.IsValid)
	require.Equal(t, x402.ReasonInvalidSvmTransaction, resp.InvalidReason)
}

func TestVerifier_WrongDestinationFails(t *testing.T) {
	f := newSvmFixture(t, 2000, 6)
	f.transfer.Destination = solana.NewWallet().PublicKey().String()
	tx := &chain.SvmTransaction{Instructions: []chain.SvmInstruction{
		{Kind: chain.SvmInstructionTransferChecked, TransferChecked: f.transfer},
	}}
	fake := &fakeSvmChain{tx: tx, decimals: 6, simResult: &chain.SvmSimulationResult{}}
	v := NewVerifier(fake)

	resp, err := v.Verify(context.Background(), svmPayload(), f.requirements("1000"))
	require.NoError(t, err)
	require.False(t, resp.IsValid)
	require.Equal(t, x402.ReasonInvalidSvmTransaction, resp.InvalidReason)
}

func TestVerifier_MintMismatchFails(t *testing.T) {
	f := newSvmFixture(t, 2000, 6)
	f.transfer.Mint = solana.NewWallet().PublicKey().String()
	tx := &chain.SvmTransaction{Instructions: []chain.SvmInstruction{
		{Kind: chain.SvmInstructionTransferChecked, TransferChecked: f.transfer},
	}}
	fake := &fakeSvmChain{tx: tx, decimals: 6, simResult: &chain.SvmSimulationResult{}}
	v := NewVerifier(fake)

	resp, err := v.Verify(context.Background(), svmPayload(), f.requirements("1000"))
	require.NoError(t, err)
	require.False(t, resp.IsValid)
	require.Equal(t, x402.ReasonInvalidSvmTransaction, resp.InvalidReason)
}

func TestVerifier_SimulationFailureFails(t *testing.T) {
	f := newSvmFixture(t, 2000, 6)
	tx := &chain.SvmTransaction{Instructions: []chain.SvmInstruction{
		{Kind: chain.SvmInstructionTransferChecked, TransferChecked: f.transfer},
	}}
	fake := &fakeSvmChain{tx: tx, decimals: 6, simResult: &chain.SvmSimulationResult{Err: "insufficient funds"}}
	v := NewVerifier(fake)

	resp, err := v.Verify(context.Background(), svmPayload(), f.requirements("1000"))
	require.NoError(t, err)
	require.False(t, resp.IsValid)
	require.Equal(t, x402.ReasonInvalidSvmSimulationFailed, resp.InvalidReason)
}

func TestVerifier_MissingFeePayerFails(t *testing.T) {
	f := newSvmFixture(t, 2000, 6)
	tx := &chain.SvmTransaction{Instructions: []chain.SvmInstruction{
		{Kind: chain.SvmInstructionTransferChecked, TransferChecked: f.transfer},
	}}
	fake := &fakeSvmChain{tx: tx, decimals: 6, simResult: &chain.SvmSimulationResult{}}
	v := NewVerifier(fake)

	reqs := f.requirements("1000")
	reqs.Extra = nil

	resp, err := v.Verify(context.Background(), svmPayload(), reqs)
	require.NoError(t, err)
	require.False(t, resp.IsValid)
	require.Equal(t, x402.ReasonInvalidPaymentRequirements, resp.InvalidReason)
}

func TestVerifier_InvalidInstructionShapeFails(t *testing.T) {
	tx := &chain.SvmTransaction{Instructions: []chain.SvmInstruction{
		{Kind: chain.SvmInstructionOther},
	}}
	fake := &fakeSvmChain{tx: tx}
	v := NewVerifier(fake)
	f := newSvmFixture(t, 2000, 6)

	resp, err := v.Verify(context.Background(), svmPayload(), f.requirements("1000"))
	require.NoError(t, err)
	require.False(t, resp.IsValid)
	require.Equal(t, x402.ReasonInvalidSvmInstructions, resp.InvalidReason)
}
