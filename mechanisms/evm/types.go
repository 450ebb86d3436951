// Package evm implements the exact-evm scheme: ERC-3009 transferWithAuthorization
// verified and settled against an EVM chain, with ERC-6492 counterfactual-signature
// support and facilitator wallet pooling.
package evm

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Authorization is the ERC-3009 TransferWithAuthorization message as received over
// the wire: every numeric field arrives as a decimal string, matching the x402
// exact-evm payload schema.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// Payload is the exact-evm payment payload: a signature over Authorization.
type Payload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// ERC6492SignatureData is a parsed ERC-6492 wrapped signature, used for signatures
// from smart contract wallets that have not yet been deployed.
type ERC6492SignatureData struct {
	Factory         string
	FactoryCalldata []byte
	InnerSignature  []byte
}

// unwrapERC6492 detects and decodes an ERC-6492 wrapper: an ABI-encoded
// (factory, factoryCalldata, innerSignature) tuple followed by the magic suffix.
// It returns ok=false, leaving signature untouched, when the magic suffix is absent.
func unwrapERC6492(signature []byte) (data ERC6492SignatureData, ok bool, err error) {
	magic, err := hex.DecodeString(ERC6492MagicValue)
	if err != nil {
		return ERC6492SignatureData{}, false, fmt.Errorf("decode erc6492 magic: %w", err)
	}
	if len(signature) < len(magic) || !bytesEqual(signature[len(signature)-len(magic):], magic) {
		return ERC6492SignatureData{}, false, nil
	}

	body := signature[:len(signature)-len(magic)]
	// body is abi.encode(factory address, factoryCalldata bytes, innerSignature bytes):
	// three 32-byte head words (factory, offset-to-calldata, offset-to-signature)
	// followed by length-prefixed tail data for the two dynamic fields.
	if len(body) < 96 {
		return ERC6492SignatureData{}, false, fmt.Errorf("erc6492 wrapper too short: %d bytes", len(body))
	}

	factory := "0x" + hex.EncodeToString(body[12:32])
	calldataOffset := beUint64(body[32:64])
	sigOffset := beUint64(body[64:96])

	calldata, err := readDynamicBytes(body, calldataOffset)
	if err != nil {
		return ERC6492SignatureData{}, false, fmt.Errorf("erc6492 factoryCalldata: %w", err)
	}
	inner, err := readDynamicBytes(body, sigOffset)
	if err != nil {
		return ERC6492SignatureData{}, false, fmt.Errorf("erc6492 innerSignature: %w", err)
	}

	return ERC6492SignatureData{Factory: factory, FactoryCalldata: calldata, InnerSignature: inner}, true, nil
}

func readDynamicBytes(body []byte, offset uint64) ([]byte, error) {
	if offset+32 > uint64(len(body)) {
		return nil, fmt.Errorf("offset %d out of range", offset)
	}
	length := beUint64(body[offset : offset+32])
	start := offset + 32
	if start+length > uint64(len(body)) {
		return nil, fmt.Errorf("dynamic field length %d out of range at offset %d", length, offset)
	}
	return body[start : start+length], nil
}

func beUint64(word []byte) uint64 {
	var v uint64
	for _, b := range word[len(word)-8:] {
		v = v<<8 | uint64(b)
	}
	return v
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// HexToBytes decodes a 0x-prefixed (or bare) hex string.
func HexToBytes(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

// normalizeRecoveryID maps a signature's trailing v byte (27/28, or already 0/1)
// to the 0/1 form go-ethereum's signature recovery expects.
func normalizeRecoveryID(v byte) byte {
	if v >= 27 {
		return v - 27
	}
	return v
}
