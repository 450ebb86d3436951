package evm

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	x402 "github.com/x402-facilitator/facilitator"
	"github.com/x402-facilitator/facilitator/chain"
	"github.com/x402-facilitator/facilitator/clock"
)

// validAfterSkewTolerance is how far in the past validAfter may sit relative to
// now and still be accepted, absorbing clock drift between client and facilitator.
const validAfterSkewTolerance = 6 // seconds

// estimatedBlockTimeSeconds is added to now when checking validBefore, so a
// payment that would still be valid by the time it lands on-chain is accepted.
const estimatedBlockTimeSeconds = 6

// Verifier implements the exact-evm verify operation: ERC-3009 signature
// recovery (with mandatory ERC-6492 unwrap), validity-window, amount, recipient,
// and balance checks. It deliberately does not check on-chain authorization
// state — nonce-used replay protection is the settlement chain's job, not the
// verifier's, so a payload can be verified repeatedly without being spent.
type Verifier struct {
	chain chain.EvmChain
	clock clock.Clock
}

func NewVerifier(chainClient chain.EvmChain, c clock.Clock) *Verifier {
	if c == nil {
		c = clock.System{}
	}
	return &Verifier{chain: chainClient, clock: c}
}

func (v *Verifier) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.VerifyResponse, error) {
	evmPayload, err := payload.DecodeEvmPayload()
	if err != nil {
		return &x402.VerifyResponse{IsValid: false, InvalidReason: x402.ReasonInvalidPayload}, nil
	}
	auth := Authorization{
		From:        evmPayload.Authorization.From,
		To:          evmPayload.Authorization.To,
		Value:       evmPayload.Authorization.Value,
		ValidAfter:  evmPayload.Authorization.ValidAfter,
		ValidBefore: evmPayload.Authorization.ValidBefore,
		Nonce:       evmPayload.Authorization.Nonce,
	}
	payer := auth.From

	chainID, assetAddress, tokenName, tokenVersion, err := v.assetDomain(ctx, requirements)
	if err != nil {
		return nil, err
	}

	value, ok1 := new(big.Int).SetString(auth.Value, 10)
	validAfter, ok2 := new(big.Int).SetString(auth.ValidAfter, 10)
	validBefore, ok3 := new(big.Int).SetString(auth.ValidBefore, 10)
	nonceBytes, nonceErr := HexToBytes(auth.Nonce)
	if !ok1 || !ok2 || !ok3 || nonceErr != nil {
		return &x402.VerifyResponse{IsValid: false, InvalidReason: x402.ReasonInvalidPayload, Payer: payer}, nil
	}

	message := map[string]interface{}{
		"from":        common.HexToAddress(auth.From).Hex(),
		"to":          common.HexToAddress(auth.To).Hex(),
		"value":       value,
		"validAfter":  validAfter,
		"validBefore": validBefore,
		"nonce":       nonceBytes,
	}

	signatureBytes, err := HexToBytes(evmPayload.Signature)
	if err != nil {
		return &x402.VerifyResponse{IsValid: false, InvalidReason: x402.ReasonInvalidEvmSignature, Payer: payer}, nil
	}

	domain := chain.EvmDomain{Name: tokenName, Version: tokenVersion, ChainID: chainID, VerifyingContract: assetAddress}
	recovered, err := v.recoverSigner(ctx, domain, message, signatureBytes)
	if err != nil {
		return nil, err
	}
	if recovered == "" || !strings.EqualFold(recovered, payer) {
		return &x402.VerifyResponse{IsValid: false, InvalidReason: x402.ReasonInvalidEvmSignature, Payer: payer}, nil
	}

	now := v.clock.Now().Unix()
	if validAfter.Int64() > now-validAfterSkewTolerance {
		return &x402.VerifyResponse{IsValid: false, InvalidReason: x402.ReasonInvalidEvmValidAfter, Payer: payer}, nil
	}
	if validBefore.Int64() <= now+estimatedBlockTimeSeconds {
		return &x402.VerifyResponse{IsValid: false, InvalidReason: x402.ReasonInvalidEvmValidBefore, Payer: payer}, nil
	}

	requiredValue, ok := new(big.Int).SetString(requirements.MaxAmountRequired, 10)
	if !ok {
		return &x402.VerifyResponse{IsValid: false, InvalidReason: x402.ReasonInvalidPaymentRequirements, Payer: payer}, nil
	}
	if value.Cmp(requiredValue) < 0 {
		return &x402.VerifyResponse{IsValid: false, InvalidReason: x402.ReasonInvalidEvmValue, Payer: payer}, nil
	}

	if !strings.EqualFold(auth.To, requirements.PayTo) {
		return &x402.VerifyResponse{IsValid: false, InvalidReason: x402.ReasonInvalidEvmRecipientMismatch, Payer: payer}, nil
	}

	balance, err := v.chain.TokenBalance(ctx, assetAddress, auth.From)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(value) < 0 {
		return &x402.VerifyResponse{IsValid: false, InvalidReason: x402.ReasonInsufficientFunds, Payer: payer}, nil
	}

	return &x402.VerifyResponse{IsValid: true, Payer: payer}, nil
}

// recoverSigner recovers the address behind signature, unwrapping an ERC-6492
// wrapper and validating it against UniversalSigValidator first when present.
func (v *Verifier) recoverSigner(ctx context.Context, domain chain.EvmDomain, message map[string]interface{}, signature []byte) (string, error) {
	hash, err := HashTypedData(domain, transferWithAuthorizationTypes, "TransferWithAuthorization", message)
	if err != nil {
		return "", err
	}
	var digest [32]byte
	copy(digest[:], hash)

	if _, ok, err := unwrapERC6492(signature); err != nil {
		return "", err
	} else if ok {
		claimedSigner, _ := message["from"].(string)
		valid, err := verifyERC6492Signature(ctx, v.chain, claimedSigner, digest, signature)
		if err != nil || !valid {
			return "", nil
		}
		return claimedSigner, nil
	}

	return v.chain.RecoverEIP712(ctx, domain, transferWithAuthorizationTypes, "TransferWithAuthorization", message, signature)
}

func (v *Verifier) assetDomain(ctx context.Context, requirements x402.PaymentRequirements) (chainID *big.Int, assetAddress, tokenName, tokenVersion string, err error) {
	chainID, ok := ChainIDs[string(requirements.Network)]
	if !ok {
		return nil, "", "", "", x402.NewFacilitatorError(x402.ReasonInvalidNetwork, "unknown evm network", nil)
	}

	assetAddress = requirements.Asset
	tokenName = requirements.ExtraString("name")
	if tokenName == "" {
		if onChainName, err := v.chain.ContractName(ctx, assetAddress); err == nil {
			tokenName = onChainName
		}
	}
	tokenVersion = requirements.ExtraString("version")
	if tokenVersion == "" {
		if onChainVersion, err := v.chain.ContractVersion(ctx, assetAddress); err == nil && onChainVersion != "" {
			tokenVersion = onChainVersion
		}
	}
	if tokenVersion == "" {
		return nil, "", "", "", x402.NewFacilitatorError(x402.ReasonInvalidPaymentRequirements, "asset version missing from requirements.extra and chain read", nil)
	}
	return chainID, assetAddress, tokenName, tokenVersion, nil
}
