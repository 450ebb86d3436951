package evm

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"time"

	x402 "github.com/x402-facilitator/facilitator"
	"github.com/x402-facilitator/facilitator/chain"
	"github.com/x402-facilitator/facilitator/idempotency"
	"github.com/x402-facilitator/facilitator/logging"
	"github.com/x402-facilitator/facilitator/mechanisms/evm/walletpool"
)

// receiptWaitTimeout is the safety ceiling on how long the settler waits for a
// submitted transaction to be mined, independent of the requirements-supplied
// MaxTimeoutSeconds, which this clamps.
const receiptWaitTimeout = 120 * time.Second

const settlementCacheTTL = 5 * time.Minute

// Settler implements the exact-evm settle operation: verify once, acquire a
// wallet, sign and broadcast transferWithAuthorization, wait for the receipt,
// and release the wallet regardless of outcome.
type Settler struct {
	chain    chain.EvmChain
	verifier *Verifier
	pool     *walletpool.Pool
	nonces   *walletpool.NonceRegistry
	logger   logging.Logger
	dedup    idempotency.Store
}

func NewSettler(chainClient chain.EvmChain, verifier *Verifier, pool *walletpool.Pool, nonces *walletpool.NonceRegistry, logger logging.Logger) *Settler {
	if logger == nil {
		logger = logging.NoopLogger{}
	}
	return &Settler{chain: chainClient, verifier: verifier, pool: pool, nonces: nonces, logger: logger, dedup: idempotency.NewMemoryStore(settlementCacheTTL)}
}

// Settle deduplicates concurrent or retried settle calls for the identical
// payload before delegating to settleOnce, so a client retry during a slow
// receipt wait never triggers a second broadcast.
func (s *Settler) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.SettleResponse, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return s.settleOnce(ctx, payload, requirements)
	}
	key := idempotency.Key(payloadBytes)

	status, cached, done := s.dedup.CheckAndMark(key)
	switch status {
	case idempotency.StatusCached:
		return cached, nil
	case idempotency.StatusInFlight:
		result, err := s.dedup.WaitForResult(ctx, key, done)
		if err != nil {
			return nil, err
		}
		if result == nil {
			return s.settleOnce(ctx, payload, requirements)
		}
		return result, nil
	}

	resp, err := s.settleOnce(ctx, payload, requirements)
	if err != nil {
		s.dedup.Fail(key, done)
		return nil, err
	}
	s.dedup.Complete(key, resp, done)
	return resp, nil
}

func (s *Settler) settleOnce(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.SettleResponse, error) {
	verifyResp, err := s.verifier.Verify(ctx, payload, requirements)
	if err != nil {
		return nil, err
	}
	if !verifyResp.IsValid {
		return &x402.SettleResponse{Success: false, ErrorReason: verifyResp.InvalidReason, Payer: verifyResp.Payer, Network: requirements.Network}, nil
	}

	evmPayload, err := payload.DecodeEvmPayload()
	if err != nil {
		return &x402.SettleResponse{Success: false, ErrorReason: x402.ReasonInvalidPayload, Payer: verifyResp.Payer, Network: requirements.Network}, nil
	}

	signatureBytes, err := HexToBytes(evmPayload.Signature)
	if err != nil || len(signatureBytes) != 65 {
		return &x402.SettleResponse{Success: false, ErrorReason: x402.ReasonInvalidEvmSignature, Payer: verifyResp.Payer, Network: requirements.Network}, nil
	}
	var r, sVal [32]byte
	copy(r[:], signatureBytes[0:32])
	copy(sVal[:], signatureBytes[32:64])
	v := normalizeRecoveryID(signatureBytes[64]) + 27

	value, ok1 := new(big.Int).SetString(evmPayload.Authorization.Value, 10)
	validAfter, ok2 := new(big.Int).SetString(evmPayload.Authorization.ValidAfter, 10)
	validBefore, ok3 := new(big.Int).SetString(evmPayload.Authorization.ValidBefore, 10)
	nonceBytes, nonceErr := HexToBytes(evmPayload.Authorization.Nonce)
	if !ok1 || !ok2 || !ok3 || nonceErr != nil || len(nonceBytes) != 32 {
		return &x402.SettleResponse{Success: false, ErrorReason: x402.ReasonInvalidPayload, Payer: verifyResp.Payer, Network: requirements.Network}, nil
	}
	var authNonce [32]byte
	copy(authNonce[:], nonceBytes)

	auth := chain.EvmAuthorization{
		From:        evmPayload.Authorization.From,
		To:          evmPayload.Authorization.To,
		Value:       value,
		ValidAfter:  validAfter,
		ValidBefore: validBefore,
		Nonce:       authNonce,
	}

	lease, err := s.pool.Acquire(ctx)
	if err != nil {
		return &x402.SettleResponse{Success: false, ErrorReason: x402.ClassifyError(err, x402.ReasonAllWalletsBusy), Payer: verifyResp.Payer, Network: requirements.Network}, nil
	}
	defer lease.Release()

	if minBalance := s.pool.MinNativeBalance(); minBalance != nil {
		balance, balErr := s.chain.NativeBalance(ctx, lease.Address)
		if balErr != nil {
			return &x402.SettleResponse{Success: false, ErrorReason: x402.ClassifyError(balErr, x402.ReasonRPCConnectionFailed), Payer: verifyResp.Payer, Network: requirements.Network}, nil
		}
		if balance == nil || balance.Cmp(minBalance) < 0 {
			return &x402.SettleResponse{Success: false, ErrorReason: x402.ReasonInsufficientFacilitatorGas, Payer: verifyResp.Payer, Network: requirements.Network}, nil
		}
	}

	timeout := receiptWaitTimeout
	if requirements.MaxTimeoutSeconds > 0 && time.Duration(requirements.MaxTimeoutSeconds)*time.Second < timeout {
		timeout = time.Duration(requirements.MaxTimeoutSeconds) * time.Second
	}

	txHash, err := s.sendWithNonceRetry(ctx, lease.PrivateKey, lease.Address, requirements.Asset, auth, v, r, sVal)
	if err != nil {
		return &x402.SettleResponse{Success: false, ErrorReason: x402.ClassifyError(err, x402.ReasonBlockchainTransactionFailed), Payer: verifyResp.Payer, Network: requirements.Network}, nil
	}
	lease.Bind(txHash)

	receipt, err := s.chain.WaitReceipt(ctx, txHash, timeout)
	if err != nil {
		return &x402.SettleResponse{Success: false, ErrorReason: x402.ClassifyError(err, x402.ReasonBlockchainTransactionFailed), Payer: verifyResp.Payer, Transaction: txHash, Network: requirements.Network}, nil
	}
	if receipt.Status != TxStatusSuccess {
		return &x402.SettleResponse{Success: false, ErrorReason: x402.ReasonBlockchainTransactionFailed, Payer: verifyResp.Payer, Transaction: txHash, Network: requirements.Network}, nil
	}

	return &x402.SettleResponse{Success: true, Payer: verifyResp.Payer, Transaction: txHash, Network: requirements.Network}, nil
}

func (s *Settler) sendWithNonceRetry(ctx context.Context, signerKey *ecdsa.PrivateKey, address, asset string, auth chain.EvmAuthorization, v byte, r, sVal [32]byte) (string, error) {
	maxAttempts, retryDelay := s.pool.RetryConfig()
	cfg := walletpool.Config{MaxRetryAttempts: maxAttempts, RetryDelay: retryDelay}
	return walletpool.WithRetry(ctx, cfg, func(attempt int) (string, error) {
		if attempt > 0 {
			s.nonces.Reset(address)
			s.logger.Warn("retrying evm settlement after nonce contention", map[string]any{"wallet": address, "attempt": attempt})
		}
		seed, seedErr := s.chain.PendingNonce(ctx, address)
		if seedErr != nil {
			seed = 0
		}
		nonce := s.nonces.Next(address, seed)
		txHash, err := s.chain.SendTransferWithAuthorization(ctx, signerKey, nonce, asset, auth, v, r, sVal)
		if err != nil {
			s.nonces.Decrement(address)
			return "", err
		}
		return txHash, nil
	})
}
