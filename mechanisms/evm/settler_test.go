package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402-facilitator/facilitator"
	"github.com/x402-facilitator/facilitator/chain"
	"github.com/x402-facilitator/facilitator/clock"
	"github.com/x402-facilitator/facilitator/logging"
	"github.com/x402-facilitator/facilitator/mechanisms/evm/walletpool"
)

func newSettlerFixture(t *testing.T, tokenBalance *big.Int) (evmFixture, *fakeEvmChain, *Settler) {
	t.Helper()
	f := newEvmFixture(t)
	fake := &fakeEvmChain{tokenBalance: tokenBalance, sendTxHash: "0xabc123", receipt: &chain.EvmReceipt{Status: TxStatusSuccess}}
	verifier := NewVerifier(fake, clock.System{})

	walletKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	pool := walletpool.New(walletpool.Config{}, []*ecdsa.PrivateKey{walletKey})
	nonces := walletpool.NewNonceRegistry()
	settler := NewSettler(fake, verifier, pool, nonces, logging.NoopLogger{})
	return f, fake, settler
}

func TestSettler_SuccessfulSettlement(t *testing.T) {
	f, _, settler := newSettlerFixture(t, big.NewInt(5000))
	auth := validAuth(f.from, f.to)
	sig := f.sign(t, auth, ChainIDs[string(x402.NetworkBase)], "USD Coin", "2")

	resp, err := settler.Settle(context.Background(), f.payload(auth, sig), f.requirements("1000"))
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, "0xabc123", resp.Transaction)
	require.Equal(t, f.from, resp.Payer)
}

func TestSettler_FailsVerificationFirst(t *testing.T) {
	f, _, settler := newSettlerFixture(t, big.NewInt(100))
	auth := validAuth(f.from, f.to)
	sig := f.sign(t, auth, ChainIDs[string(x402.NetworkBase)], "USD Coin", "2")

	resp, err := settler.Settle(context.Background(), f.payload(auth, sig), f.requirements("1000"))
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Equal(t, x402.ReasonInsufficientFunds, resp.ErrorReason)
}

func TestSettler_ReceiptFailureStatus(t *testing.T) {
	f, fake, settler := newSettlerFixture(t, big.NewInt(5000))
	fake.receipt = &chain.EvmReceipt{Status: 0}
	auth := validAuth(f.from, f.to)
	sig := f.sign(t, auth, ChainIDs[string(x402.NetworkBase)], "USD Coin", "2")

	resp, err := settler.Settle(context.Background(), f.payload(auth, sig), f.requirements("1000"))
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Equal(t, x402.ReasonBlockchainTransactionFailed, resp.ErrorReason)
	require.Equal(t, "0xabc123", resp.Transaction)
}

func TestSettler_SendFailurePropagatesReason(t *testing.T) {
	f, fake, settler := newSettlerFixture(t, big.NewInt(5000))
	fake.sendTxErr = fmt.Errorf("rpc unavailable")
	auth := validAuth(f.from, f.to)
	sig := f.sign(t, auth, ChainIDs[string(x402.NetworkBase)], "USD Coin", "2")

	resp, err := settler.Settle(context.Background(), f.payload(auth, sig), f.requirements("1000"))
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Equal(t, x402.ReasonBlockchainTransactionFailed, resp.ErrorReason)
}

func TestSettler_NoWalletsConfigured(t *testing.T) {
	f := newEvmFixture(t)
	fake := &fakeEvmChain{tokenBalance: big.NewInt(5000)}
	verifier := NewVerifier(fake, clock.System{})
	pool := walletpool.New(walletpool.Config{}, nil)
	nonces := walletpool.NewNonceRegistry()
	settler := NewSettler(fake, verifier, pool, nonces, logging.NoopLogger{})

	auth := validAuth(f.from, f.to)
	sig := f.sign(t, auth, ChainIDs[string(x402.NetworkBase)], "USD Coin", "2")

	resp, err := settler.Settle(context.Background(), f.payload(auth, sig), f.requirements("1000"))
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Equal(t, x402.ReasonNoWalletsConfigured, resp.ErrorReason)
}

func TestSettler_InsufficientFacilitatorGasBalance(t *testing.T) {
	f := newEvmFixture(t)
	fake := &fakeEvmChain{tokenBalance: big.NewInt(5000), nativeBalance: big.NewInt(1)}
	verifier := NewVerifier(fake, clock.System{})

	walletKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	pool := walletpool.New(walletpool.Config{MinNativeBalanceWei: big.NewInt(1000)}, []*ecdsa.PrivateKey{walletKey})
	nonces := walletpool.NewNonceRegistry()
	settler := NewSettler(fake, verifier, pool, nonces, logging.NoopLogger{})

	auth := validAuth(f.from, f.to)
	sig := f.sign(t, auth, ChainIDs[string(x402.NetworkBase)], "USD Coin", "2")

	resp, err := settler.Settle(context.Background(), f.payload(auth, sig), f.requirements("1000"))
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Equal(t, x402.ReasonInsufficientFacilitatorGas, resp.ErrorReason)
}

func TestSettler_SufficientFacilitatorGasBalanceProceeds(t *testing.T) {
	f := newEvmFixture(t)
	fake := &fakeEvmChain{tokenBalance: big.NewInt(5000), nativeBalance: big.NewInt(5000), sendTxHash: "0xabc123", receipt: &chain.EvmReceipt{Status: TxStatusSuccess}}
	verifier := NewVerifier(fake, clock.System{})

	walletKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	pool := walletpool.New(walletpool.Config{MinNativeBalanceWei: big.NewInt(1000)}, []*ecdsa.PrivateKey{walletKey})
	nonces := walletpool.NewNonceRegistry()
	settler := NewSettler(fake, verifier, pool, nonces, logging.NoopLogger{})

	auth := validAuth(f.from, f.to)
	sig := f.sign(t, auth, ChainIDs[string(x402.NetworkBase)], "USD Coin", "2")

	resp, err := settler.Settle(context.Background(), f.payload(auth, sig), f.requirements("1000"))
	require.NoError(t, err)
	require.True(t, resp.Success)
}

func TestSettler_DedupesIdenticalSettleCalls(t *testing.T) {
	f, fake, settler := newSettlerFixture(t, big.NewInt(5000))
	auth := validAuth(f.from, f.to)
	sig := f.sign(t, auth, ChainIDs[string(x402.NetworkBase)], "USD Coin", "2")
	payload := f.payload(auth, sig)
	req := f.requirements("1000")

	first, err := settler.Settle(context.Background(), payload, req)
	require.NoError(t, err)
	require.True(t, first.Success)

	fake.sendTxHash = "0xdifferent"
	second, err := settler.Settle(context.Background(), payload, req)
	require.NoError(t, err)
	require.Equal(t, first.Transaction, second.Transaction)
}
