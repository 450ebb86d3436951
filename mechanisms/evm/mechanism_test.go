package evm

import (
	"context"
	"crypto/ecdsa"
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

func newMechanismFixture(t *testing.T, networks ...x402.Network) (evmFixture, *Mechanism) {
	t.Helper()
	f := newEvmFixture(t)
	fake := &fakeEvmChain{tokenBalance: big.NewInt(5000), sendTxHash: "0xabc123", receipt: &chain.EvmReceipt{Status: TxStatusSuccess}}
	verifier := NewVerifier(fake, clock.System{})

	walletKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	pool := walletpool.New(walletpool.Config{}, []*ecdsa.PrivateKey{walletKey})
	nonces := walletpool.NewNonceRegistry()
	settler := NewSettler(fake, verifier, pool, nonces, logging.NoopLogger{})

	return f, NewMechanism(verifier, settler, networks)
}

func TestMechanism_VerifyRejectsDisallowedNetwork(t *testing.T) {
	f, mechanism := newMechanismFixture(t, x402.NetworkBaseSepolia)
	auth := validAuth(f.from, f.to)
	sig := f.sign(t, auth, ChainIDs[string(x402.NetworkBase)], "USD Coin", "2")

	resp, err := mechanism.Verify(context.Background(), f.payload(auth, sig), f.requirements("1000"))
	require.NoError(t, err)
	require.False(t, resp.IsValid)
	require.Equal(t, x402.ReasonNetworkNotAllowed, resp.InvalidReason)
}

func TestMechanism_SettleRejectsDisallowedNetwork(t *testing.T) {
	f, mechanism := newMechanismFixture(t, x402.NetworkBaseSepolia)
	auth := validAuth(f.from, f.to)
	sig := f.sign(t, auth, ChainIDs[string(x402.NetworkBase)], "USD Coin", "2")

	resp, err := mechanism.Settle(context.Background(), f.payload(auth, sig), f.requirements("1000"))
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Equal(t, x402.ReasonNetworkNotAllowed, resp.ErrorReason)
}

func TestMechanism_VerifyAllowsConfiguredNetwork(t *testing.T) {
	f, mechanism := newMechanismFixture(t, x402.NetworkBase)
	auth := validAuth(f.from, f.to)
	sig := f.sign(t, auth, ChainIDs[string(x402.NetworkBase)], "USD Coin", "2")

	resp, err := mechanism.Verify(context.Background(), f.payload(auth, sig), f.requirements("1000"))
	require.NoError(t, err)
	require.True(t, resp.IsValid)
}
