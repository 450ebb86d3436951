package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/x402-facilitator/facilitator/chain"
)

// ChainClient binds chain.EvmChain to an RPC endpoint via go-ethereum's ethclient.
type ChainClient struct {
	client  *ethclient.Client
	chainID *big.Int
}

func Dial(ctx context.Context, rpcURL string) (*ChainClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch evm chain id: %w", err)
	}
	return &ChainClient{client: client, chainID: chainID}, nil
}

func (c *ChainClient) ChainID(ctx context.Context) (*big.Int, error) {
	return c.chainID, nil
}

func (c *ChainClient) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	return c.client.BalanceAt(ctx, common.HexToAddress(address), nil)
}

func (c *ChainClient) TokenBalance(ctx context.Context, asset, owner string) (*big.Int, error) {
	results, err := c.CallContract(ctx, asset, balanceOfABI, FunctionBalanceOf, owner)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return big.NewInt(0), nil
	}
	balance, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T", results[0])
	}
	return balance, nil
}

func (c *ChainClient) PendingNonce(ctx context.Context, address string) (uint64, error) {
	return c.client.PendingNonceAt(ctx, common.HexToAddress(address))
}

func (c *ChainClient) ContractVersion(ctx context.Context, asset string) (string, error) {
	results, err := c.CallContract(ctx, asset, versionABI, FunctionVersion)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}
	version, _ := results[0].(string)
	return version, nil
}

func (c *ChainClient) ContractName(ctx context.Context, asset string) (string, error) {
	results, err := c.CallContract(ctx, asset, nameABI, FunctionName)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}
	name, _ := results[0].(string)
	return name, nil
}

func (c *ChainClient) CallContract(ctx context.Context, address string, abiJSON []byte, method string, args ...interface{}) ([]interface{}, error) {
	contractABI, err := abi.JSON(strings.NewReader(string(abiJSON)))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	data, err := contractABI.Pack(method, normalizeArgs(args)...)
	if err != nil {
		return nil, fmt.Errorf("pack %s call: %w", method, err)
	}

	to := common.HexToAddress(address)
	result, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	if len(result) == 0 {
		return nil, nil
	}

	methodDef, ok := contractABI.Methods[method]
	if !ok {
		return nil, fmt.Errorf("method %s not found in abi", method)
	}
	return methodDef.Outputs.Unpack(result)
}

// normalizeArgs converts hex-string addresses and nonces into the types the ABI
// packer expects, mirroring the conversions a caller would otherwise repeat at
// every call site.
func normalizeArgs(args []interface{}) []interface{} {
	out := make([]interface{}, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case string:
			if common.IsHexAddress(v) {
				out[i] = common.HexToAddress(v)
			} else {
				out[i] = v
			}
		default:
			out[i] = v
		}
	}
	return out
}

// RecoverEIP712 recovers the signer address from an EIP-712 typed-data signature
// by recomputing the digest and running ECDSA public key recovery, normalizing
// the trailing v byte to its 0/1 form first.
func (c *ChainClient) RecoverEIP712(ctx context.Context, domain chain.EvmDomain, typesMap map[string][]chain.EvmTypeField, primaryType string, message map[string]interface{}, signature []byte) (string, error) {
	if len(signature) != 65 {
		return "", fmt.Errorf("invalid signature length: %d", len(signature))
	}

	typedData := apitypes.TypedData{
		Types:       make(apitypes.Types),
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(domain.ChainID),
			VerifyingContract: domain.VerifyingContract,
		},
		Message: message,
	}
	for typeName, fields := range typesMap {
		typedFields := make([]apitypes.Type, len(fields))
		for i, f := range fields {
			typedFields[i] = apitypes.Type{Name: f.Name, Type: f.Type}
		}
		typedData.Types[typeName] = typedFields
	}
	if _, exists := typedData.Types["EIP712Domain"]; !exists {
		typedData.Types["EIP712Domain"] = []apitypes.Type{
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		}
	}

	dataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return "", fmt.Errorf("hash struct: %w", err)
	}
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return "", fmt.Errorf("hash domain: %w", err)
	}
	raw := []byte{0x19, 0x01}
	raw = append(raw, domainSeparator...)
	raw = append(raw, dataHash...)
	digest := crypto.Keccak256(raw)

	sigCopy := make([]byte, 65)
	copy(sigCopy, signature)
	sigCopy[64] = normalizeRecoveryID(sigCopy[64])

	pubKey, err := crypto.SigToPub(digest, sigCopy)
	if err != nil {
		return "", fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey).Hex(), nil
}

// SendTransferWithAuthorization packs and broadcasts a transferWithAuthorization
// call, signed by signerKey at the given nonce.
func (c *ChainClient) SendTransferWithAuthorization(ctx context.Context, signerKey *ecdsa.PrivateKey, nonce uint64, asset string, auth chain.EvmAuthorization, v byte, r, s [32]byte) (string, error) {
	contractABI, err := abi.JSON(strings.NewReader(string(transferWithAuthorizationABI)))
	if err != nil {
		return "", fmt.Errorf("parse transferWithAuthorization abi: %w", err)
	}

	data, err := contractABI.Pack(FunctionTransferWithAuthorization,
		common.HexToAddress(auth.From),
		common.HexToAddress(auth.To),
		auth.Value,
		auth.ValidAfter,
		auth.ValidBefore,
		auth.Nonce,
		v,
		r,
		s,
	)
	if err != nil {
		return "", fmt.Errorf("pack transferWithAuthorization: %w", err)
	}

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}

	to := common.HexToAddress(asset)
	tx := types.NewTransaction(nonce, to, big.NewInt(0), 300_000, gasPrice, data)

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), signerKey)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	return signedTx.Hash().Hex(), nil
}

func (c *ChainClient) WaitReceipt(ctx context.Context, txHash string, timeout time.Duration) (*chain.EvmReceipt, error) {
	deadline := time.Now().Add(timeout)
	hash := common.HexToHash(txHash)
	for time.Now().Before(deadline) {
		receipt, err := c.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return &chain.EvmReceipt{Status: receipt.Status, BlockNumber: receipt.BlockNumber.Uint64(), TxHash: receipt.TxHash.Hex()}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil, fmt.Errorf("transaction receipt not found within %s", timeout)
}
