package evm

import "math/big"

const (
	SchemeExact     = "exact"
	DefaultDecimals = 6

	FunctionTransferWithAuthorization = "transferWithAuthorization"
	FunctionAuthorizationState        = "authorizationState"
	FunctionBalanceOf                 = "balanceOf"
	FunctionVersion                   = "version"
	FunctionName                      = "name"

	TxStatusSuccess = 1
	TxStatusFailed  = 0

	// ERC6492MagicValue is bytes32(uint256(keccak256("erc6492.invalid.signature")) - 1),
	// appended to the last 32 bytes of an ERC-6492 wrapped signature.
	ERC6492MagicValue = "6492649264926492649264926492649264926492649264926492649264926492"

	EIP1271MagicValue = "0x1626ba7e"

	// UniversalSigValidatorAddress is the ERC-6492 reference validator contract,
	// deployed at the same address on every supported EVM chain via CREATE2.
	UniversalSigValidatorAddress = "0x164af34fAF9879394370C7f09dA14f8AD9c7FBF1"
)

// ChainIDs maps each CAIP-2 EVM network identifier the facilitator supports to
// its numeric chain ID, used to build the EIP-712 domain separator.
var ChainIDs = map[string]*big.Int{
	"eip155:8453":  big.NewInt(8453),   // base
	"eip155:84532": big.NewInt(84532),  // base-sepolia
	"eip155:137":   big.NewInt(137),    // polygon
	"eip155:80002": big.NewInt(80002),  // polygon-amoy
	"eip155:43114": big.NewInt(43114),  // avalanche
	"eip155:43113": big.NewInt(43113),  // avalanche-fuji
	"eip155:2741":  big.NewInt(2741),   // abstract
	"eip155:11124": big.NewInt(11124),  // abstract-testnet
	"eip155:1329":  big.NewInt(1329),   // sei
	"eip155:1328":  big.NewInt(1328),   // sei-testnet
	"eip155:4689":  big.NewInt(4689),   // iotex
	"eip155:3338":  big.NewInt(3338),   // peaq
}

var transferWithAuthorizationABI = []byte(`[
	{
		"inputs": [
			{"name": "from", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "value", "type": "uint256"},
			{"name": "validAfter", "type": "uint256"},
			{"name": "validBefore", "type": "uint256"},
			{"name": "nonce", "type": "bytes32"},
			{"name": "v", "type": "uint8"},
			{"name": "r", "type": "bytes32"},
			{"name": "s", "type": "bytes32"}
		],
		"name": "transferWithAuthorization",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`)

var balanceOfABI = []byte(`[
	{
		"inputs": [{"name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`)

var versionABI = []byte(`[
	{
		"inputs": [],
		"name": "version",
		"outputs": [{"name": "", "type": "string"}],
		"stateMutability": "view",
		"type": "function"
	}
]`)

var nameABI = []byte(`[
	{
		"inputs": [],
		"name": "name",
		"outputs": [{"name": "", "type": "string"}],
		"stateMutability": "view",
		"type": "function"
	}
]`)

var universalSigValidatorABI = []byte(`[
	{
		"inputs": [
			{"name": "_signer", "type": "address"},
			{"name": "_hash", "type": "bytes32"},
			{"name": "_signature", "type": "bytes"}
		],
		"name": "isValidSig",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`)
