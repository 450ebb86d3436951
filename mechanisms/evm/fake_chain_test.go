package evm

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/x402-facilitator/facilitator/chain"
)

// fakeEvmChain implements chain.EvmChain for tests. RecoverEIP712 performs real
// ECDSA recovery so tests can sign authorizations with an actual private key and
// exercise the verifier's signature checks end to end; everything else is a
// canned response.
type fakeEvmChain struct {
	tokenBalance    *big.Int
	tokenBalanceErr error
	nativeBalance   *big.Int
	contractVersion string
	contractVersionErr error
	contractName    string
	contractNameErr error
	pendingNonce    uint64
	callContractResults []interface{}
	callContractErr error
	sendTxHash      string
	sendTxErr       error
	receipt         *chain.EvmReceipt
	receiptErr      error
	chainID         *big.Int
}

func (f *fakeEvmChain) ChainID(ctx context.Context) (*big.Int, error) {
	if f.chainID != nil {
		return f.chainID, nil
	}
	return big.NewInt(8453), nil
}

func (f *fakeEvmChain) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	if f.nativeBalance != nil {
		return f.nativeBalance, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeEvmChain) TokenBalance(ctx context.Context, asset, owner string) (*big.Int, error) {
	if f.tokenBalanceErr != nil {
		return nil, f.tokenBalanceErr
	}
	if f.tokenBalance != nil {
		return f.tokenBalance, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeEvmChain) PendingNonce(ctx context.Context, address string) (uint64, error) {
	return f.pendingNonce, nil
}

func (f *fakeEvmChain) ContractVersion(ctx context.Context, asset string) (string, error) {
	return f.contractVersion, f.contractVersionErr
}

func (f *fakeEvmChain) ContractName(ctx context.Context, asset string) (string, error) {
	return f.contractName, f.contractNameErr
}

func (f *fakeEvmChain) CallContract(ctx context.Context, address string, abiJSON []byte, method string, args ...interface{}) ([]interface{}, error) {
	return f.callContractResults, f.callContractErr
}

func (f *fakeEvmChain) RecoverEIP712(ctx context.Context, domain chain.EvmDomain, types map[string][]chain.EvmTypeField, primaryType string, message map[string]interface{}, signature []byte) (string, error) {
	if len(signature) != 65 {
		return "", nil
	}
	digest, err := HashTypedData(domain, types, primaryType, message)
	if err != nil {
		return "", err
	}
	sigCopy := make([]byte, 65)
	copy(sigCopy, signature)
	sigCopy[64] = normalizeRecoveryID(sigCopy[64])

	pubKey, err := crypto.SigToPub(digest, sigCopy)
	if err != nil {
		return "", nil
	}
	return crypto.PubkeyToAddress(*pubKey).Hex(), nil
}

func (f *fakeEvmChain) SendTransferWithAuthorization(ctx context.Context, signerKey *ecdsa.PrivateKey, nonce uint64, asset string, auth chain.EvmAuthorization, v byte, r, s [32]byte) (string, error) {
	return f.sendTxHash, f.sendTxErr
}

func (f *fakeEvmChain) WaitReceipt(ctx context.Context, txHash string, timeout time.Duration) (*chain.EvmReceipt, error) {
	return f.receipt, f.receiptErr
}

var _ chain.EvmChain = (*fakeEvmChain)(nil)
