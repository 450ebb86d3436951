package evm

import (
	"context"

	"github.com/x402-facilitator/facilitator/chain"
)

// verifyERC6492Signature calls the ERC-6492 UniversalSigValidator contract
// (eth_call, no state committed) to verify signerAddress's signature over hash,
// which atomically simulates any pending factory deployment before checking the
// inner signature via EIP-1271 or ECDSA recovery.
func verifyERC6492Signature(ctx context.Context, chainClient chain.EvmChain, signerAddress string, hash [32]byte, signature []byte) (bool, error) {
	results, err := chainClient.CallContract(ctx, UniversalSigValidatorAddress, universalSigValidatorABI, "isValidSig", signerAddress, hash, signature)
	if err != nil {
		return false, err
	}
	if len(results) == 0 {
		return false, nil
	}
	valid, ok := results[0].(bool)
	if !ok {
		return false, nil
	}
	return valid, nil
}
