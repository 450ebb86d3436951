package svm

import (
	"context"
	"strconv"

	solana "github.com/gagliardetto/solana-go"

	x402 "github.com/x402-facilitator/facilitator"
	"github.com/x402-facilitator/facilitator/chain"
)

// Verifier validates an exact-svm payload against payment requirements by decoding
// the wire transaction, checking its instruction shape and transfer details, and
// simulating it against the network's designated fee payer.
type Verifier struct {
	chain chain.SvmChain
}

func NewVerifier(chainClient chain.SvmChain) *Verifier {
	return &Verifier{chain: chainClient}
}

func (v *Verifier) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.VerifyResponse, error) {
	svmPayload, err := payload.DecodeSvmPayload()
	if err != nil {
		return invalid(x402.ReasonInvalidPayload), nil
	}

	tx, err := v.chain.DecodeTransaction(svmPayload.Transaction)
	if err != nil {
		return invalid(x402.ReasonInvalidSvmTransaction), nil
	}

	transfer, err := validateInstructionShape(tx.Instructions)
	if err != nil {
		return invalid(x402.ReasonInvalidSvmInstructions), nil
	}

	if !addressesEqual(transfer.Mint, requirements.Asset) {
		return invalid(x402.ReasonInvalidSvmTransaction), nil
	}

	mint, err := solana.PublicKeyFromBase58(transfer.Mint)
	if err != nil {
		return invalid(x402.ReasonInvalidSvmTransaction), nil
	}
	payTo, err := solana.PublicKeyFromBase58(requirements.PayTo)
	if err != nil {
		return invalid(x402.ReasonInvalidPaymentRequirements), nil
	}
	expectedDestination, _, err := solana.FindAssociatedTokenAddress(payTo, mint)
	if err != nil || !addressesEqual(transfer.Destination, expectedDestination.String()) {
		return invalid(x402.ReasonInvalidSvmTransaction), nil
	}

	decimals, err := v.chain.MintDecimals(ctx, transfer.Mint)
	if err != nil {
		return invalid(x402.ReasonInvalidSvmTransaction), nil
	}
	if decimals != transfer.Decimals {
		return invalid(x402.ReasonInvalidSvmTransaction), nil
	}

	required, err := strconv.ParseUint(requirements.MaxAmountRequired, 10, 64)
	if err != nil {
		return invalid(x402.ReasonInvalidPaymentRequirements), nil
	}
	if transfer.Amount < required {
		return invalid(x402.ReasonInvalidSvmAmountMismatch), nil
	}

	feePayer := requirements.ExtraString("feePayer")
	if feePayer == "" {
		return invalid(x402.ReasonInvalidPaymentRequirements), nil
	}
	simResult, err := v.chain.Simulate(ctx, tx, pubkeyOnlyFeePayer{pubkey: feePayer})
	if err != nil || simResult.Err != "" {
		return invalid(x402.ReasonInvalidSvmSimulationFailed), nil
	}

	return &x402.VerifyResponse{IsValid: true, Payer: transfer.Owner}, nil
}

func invalid(reason string) *x402.VerifyResponse {
	return &x402.VerifyResponse{IsValid: false, InvalidReason: reason}
}

func addressesEqual(a, b string) bool {
	return a == b
}
