// Package chain declares the narrow RPC ports the facilitator core depends on:
// EvmChain and SvmChain. Concrete implementations live in mechanisms/evm and
// mechanisms/svm, built on go-ethereum and solana-go respectively; the core itself
// never imports either SDK directly.
package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"
)

// EvmDomain is an EIP-712 domain separator's parameters.
type EvmDomain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract string
}

// EvmTypeField is one field of an EIP-712 struct type definition.
type EvmTypeField struct {
	Name string
	Type string
}

// EvmAuthorization is the ERC-3009 TransferWithAuthorization message, value-parsed.
type EvmAuthorization struct {
	From        string
	To          string
	Value       *big.Int
	ValidAfter  *big.Int
	ValidBefore *big.Int
	Nonce       [32]byte
}

// EvmReceipt is a mined transaction's outcome.
type EvmReceipt struct {
	Status      uint64
	BlockNumber uint64
	TxHash      string
}

// EvmChain is the facilitator's view of an EVM RPC endpoint: balance and nonce
// queries, ABI-encoded contract reads, EIP-712 signature recovery (with ERC-6492
// unwrap), and transferWithAuthorization construction, broadcast, and receipt wait.
type EvmChain interface {
	ChainID(ctx context.Context) (*big.Int, error)
	NativeBalance(ctx context.Context, address string) (*big.Int, error)
	TokenBalance(ctx context.Context, asset, owner string) (*big.Int, error)
	// PendingNonce returns the pending-tag transaction count for address, i.e. the
	// next nonce a transaction from address would need.
	PendingNonce(ctx context.Context, address string) (uint64, error)
	// ContractVersion reads the asset contract's EIP-712 "version" if it exposes one.
	ContractVersion(ctx context.Context, asset string) (string, error)
	// ContractName reads the asset contract's ERC-20 "name" if it exposes one.
	ContractName(ctx context.Context, asset string) (string, error)

	// CallContract performs an arbitrary read-only ABI call, used for the
	// ERC-6492 UniversalSigValidator check that the generic port above has no
	// dedicated method for.
	CallContract(ctx context.Context, address string, abiJSON []byte, method string, args ...interface{}) ([]interface{}, error)

	// RecoverEIP712 recovers the signer address of a 65-byte typed-data
	// signature. It does not handle ERC-6492 wrappers; the EVM verifier
	// validates and unwraps those (via CallContract) before calling it.
	RecoverEIP712(ctx context.Context, domain EvmDomain, types map[string][]EvmTypeField, primaryType string, message map[string]interface{}, signature []byte) (string, error)

	// SendTransferWithAuthorization signs a transferWithAuthorization call with
	// signerKey at the given nonce and broadcasts it, returning the tx hash.
	SendTransferWithAuthorization(ctx context.Context, signerKey *ecdsa.PrivateKey, nonce uint64, asset string, auth EvmAuthorization, v byte, r, s [32]byte) (txHash string, err error)

	WaitReceipt(ctx context.Context, txHash string, timeout time.Duration) (*EvmReceipt, error)
}
