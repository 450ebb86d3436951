// Package x402facilitator implements the facilitator side of the x402 HTTP
// micropayment protocol's "exact" scheme: it verifies signed transfer
// authorizations against declared payment requirements and, on request,
// submits them on-chain and reports the outcome. It never signs on behalf of
// a payer and never custodies funds; it only relays and confirms.
package x402facilitator

import (
	"encoding/json"
	"fmt"

	"github.com/x402-facilitator/facilitator/internal/x402types"
)

// Network is a blockchain network identifier in CAIP-2 format, namespace:reference
// (e.g. "eip155:8453" for Base, "solana:mainnet" for Solana mainnet). Aliased from
// x402types so discovery (which the root package imports) can share the same type
// without importing the root package back.
type Network = x402types.Network

const (
	NetworkBase            = x402types.NetworkBase
	NetworkBaseSepolia     = x402types.NetworkBaseSepolia
	NetworkPolygon         = x402types.NetworkPolygon
	NetworkPolygonAmoy     = x402types.NetworkPolygonAmoy
	NetworkAvalanche       = x402types.NetworkAvalanche
	NetworkAvalancheFuji   = x402types.NetworkAvalancheFuji
	NetworkAbstract        = x402types.NetworkAbstract
	NetworkAbstractTestnet = x402types.NetworkAbstractTestnet
	NetworkSei             = x402types.NetworkSei
	NetworkSeiTestnet      = x402types.NetworkSeiTestnet
	NetworkIotex           = x402types.NetworkIotex
	NetworkPeaq            = x402types.NetworkPeaq
	NetworkSolana          = x402types.NetworkSolana
	NetworkSolanaDevnet    = x402types.NetworkSolanaDevnet
)

// Family identifies which chain port (EVM or SVM) serves a network.
type Family = x402types.Family

const (
	FamilyEVM = x402types.FamilyEVM
	FamilySVM = x402types.FamilySVM
)

// PaymentRequirements is a seller's immutable, request-scoped offer: what asset, how
// much, where, and under which scheme a payment must satisfy.
type PaymentRequirements = x402types.PaymentRequirements

// ExactEvmAuthorization is the ERC-3009 TransferWithAuthorization struct signed by
// the payer under the asset's EIP-712 domain.
type ExactEvmAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ExactEvmPayload is the EVM exact-scheme payment payload: a hex-encoded 65-byte
// ECDSA signature (optionally ERC-6492 wrapped) plus the authorization it covers.
type ExactEvmPayload struct {
	Signature     string                `json:"signature"`
	Authorization ExactEvmAuthorization `json:"authorization"`
}

// ExactSvmPayload is the SVM exact-scheme payment payload: a base64-serialized,
// partially-signed transaction containing an SPL TransferChecked instruction.
type ExactSvmPayload struct {
	Transaction string `json:"transaction"`
}

// PaymentPayload envelopes a mechanism-specific payload (ExactEvmPayload or
// ExactSvmPayload, carried as a generic map at the wire boundary) with version,
// scheme, and network tags.
type PaymentPayload struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     Network                `json:"network"`
	Payload     map[string]interface{} `json:"payload"`
}

// DecodeEvmPayload converts the payload's generic map into a typed ExactEvmPayload.
func (p PaymentPayload) DecodeEvmPayload() (ExactEvmPayload, error) {
	var out ExactEvmPayload
	if err := remarshal(p.Payload, &out); err != nil {
		return out, fmt.Errorf("invalid evm payload: %w", err)
	}
	return out, nil
}

// DecodeSvmPayload converts the payload's generic map into a typed ExactSvmPayload.
func (p PaymentPayload) DecodeSvmPayload() (ExactSvmPayload, error) {
	var out ExactSvmPayload
	if err := remarshal(p.Payload, &out); err != nil {
		return out, fmt.Errorf("invalid svm payload: %w", err)
	}
	return out, nil
}

func remarshal(in map[string]interface{}, out interface{}) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// VerifyResponse is the outcome of validating a PaymentPayload against
// PaymentRequirements, without touching any chain state-changing path.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse is the outcome of submitting a payment on-chain.
type SettleResponse struct {
	Success     bool    `json:"success"`
	ErrorReason string  `json:"errorReason,omitempty"`
	Payer       string  `json:"payer,omitempty"`
	Transaction string  `json:"transaction"`
	Network     Network `json:"network"`
}

// SupportedKind is one entry of the facilitator's advertised capability set.
type SupportedKind struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     Network                `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse is the body of GET /supported.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// DeepEqual normalizes both values through JSON and compares the result; used to
// detect critical-field drift in discovery's debounce check.
var DeepEqual = x402types.DeepEqual
