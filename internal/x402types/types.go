// Package x402types holds the wire types shared between the root
// x402facilitator package and discovery, split out so discovery can depend on
// them without importing the root package (which itself imports discovery).
package x402types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Network is a blockchain network identifier in CAIP-2 format, namespace:reference
// (e.g. "eip155:8453" for Base, "solana:mainnet" for Solana mainnet).
type Network string

const (
	NetworkBase            Network = "eip155:8453"
	NetworkBaseSepolia     Network = "eip155:84532"
	NetworkPolygon         Network = "eip155:137"
	NetworkPolygonAmoy     Network = "eip155:80002"
	NetworkAvalanche       Network = "eip155:43114"
	NetworkAvalancheFuji   Network = "eip155:43113"
	NetworkAbstract        Network = "eip155:2741"
	NetworkAbstractTestnet Network = "eip155:11124"
	NetworkSei             Network = "eip155:1329"
	NetworkSeiTestnet      Network = "eip155:1328"
	NetworkIotex           Network = "eip155:4689"
	NetworkPeaq            Network = "eip155:3338"
	NetworkSolana          Network = "solana:mainnet"
	NetworkSolanaDevnet    Network = "solana:devnet"
)

// Family identifies which chain port (EVM or SVM) serves a network.
type Family string

const (
	FamilyEVM Family = "evm"
	FamilySVM Family = "svm"
)

// Parse splits the network into its CAIP-2 namespace and reference.
func (n Network) Parse() (namespace, reference string, err error) {
	parts := strings.SplitN(string(n), ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid network format: %s", n)
	}
	return parts[0], parts[1], nil
}

// Family reports which chain family a network belongs to.
func (n Network) Family() Family {
	namespace, _, err := n.Parse()
	if err != nil {
		return ""
	}
	if namespace == "solana" {
		return FamilySVM
	}
	return FamilyEVM
}

// Match reports whether n matches pattern, with bidirectional CAIP wildcard support
// (a ":*" suffix on either side matches any reference within that namespace).
func (n Network) Match(pattern Network) bool {
	if n == pattern {
		return true
	}
	nStr, patternStr := string(n), string(pattern)
	if strings.HasSuffix(patternStr, ":*") {
		return strings.HasPrefix(nStr, strings.TrimSuffix(patternStr, "*"))
	}
	if strings.HasSuffix(nStr, ":*") {
		return strings.HasPrefix(patternStr, strings.TrimSuffix(nStr, "*"))
	}
	return false
}

// PaymentRequirements is a seller's immutable, request-scoped offer: what asset, how
// much, where, and under which scheme a payment must satisfy.
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           Network                `json:"network"`
	Asset             string                 `json:"asset"`
	MaxAmountRequired string                 `json:"maxAmountRequired"`
	Resource          string                 `json:"resource"`
	Description       string                 `json:"description,omitempty"`
	MimeType          string                 `json:"mimeType,omitempty"`
	OutputSchema      json.RawMessage        `json:"outputSchema,omitempty"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// ExtraString reads a string-valued key from Extra, returning "" if absent or
// not a string. Used for extra.name, extra.version, extra.feePayer.
func (r PaymentRequirements) ExtraString(key string) string {
	if r.Extra == nil {
		return ""
	}
	v, _ := r.Extra[key].(string)
	return v
}

// DeepEqual normalizes both values through JSON and compares the result; used to
// detect critical-field drift in discovery's debounce check.
func DeepEqual(a, b interface{}) bool {
	aJSON, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bJSON, err := json.Marshal(b)
	if err != nil {
		return false
	}
	var aNorm, bNorm interface{}
	if json.Unmarshal(aJSON, &aNorm) != nil || json.Unmarshal(bJSON, &bNorm) != nil {
		return false
	}
	aNormJSON, _ := json.Marshal(aNorm)
	bNormJSON, _ := json.Marshal(bNorm)
	return string(aNormJSON) == string(bNormJSON)
}
