package svm

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	x402 "github.com/x402-facilitator/facilitator"
	"github.com/x402-facilitator/facilitator/chain"
	"github.com/x402-facilitator/facilitator/idempotency"
	"github.com/x402-facilitator/facilitator/logging"
)

const confirmationTimeout = 120 * time.Second

const settlementCacheTTL = 5 * time.Minute

// Settler re-verifies a payload, substitutes the network's designated fee payer
// into the decoded transaction, simulates it, and broadcasts it, waiting for
// confirmation before reporting success.
type Settler struct {
	chain     chain.SvmChain
	verifier  *Verifier
	feePayers map[x402.Network]chain.SvmFeePayer
	logger    logging.Logger
	dedup     idempotency.Store
}

func NewSettler(chainClient chain.SvmChain, verifier *Verifier, feePayers map[x402.Network]chain.SvmFeePayer, logger logging.Logger) *Settler {
	if logger == nil {
		logger = logging.NoopLogger{}
	}
	return &Settler{chain: chainClient, verifier: verifier, feePayers: feePayers, logger: logger, dedup: idempotency.NewMemoryStore(settlementCacheTTL)}
}

// Settle deduplicates concurrent or retried settle calls for the identical
// payload before delegating to settleOnce, so a client retry during a slow
// confirmation wait never triggers a second broadcast.
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
	verifyResult, err := s.verifier.Verify(ctx, payload, requirements)
	if err != nil {
		return nil, err
	}
	if !verifyResult.IsValid {
		return &x402.SettleResponse{Success: false, ErrorReason: verifyResult.InvalidReason, Network: requirements.Network}, nil
	}

	feePayer, ok := s.feePayers[requirements.Network]
	if !ok {
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: x402.ReasonNoWalletsConfigured,
			Payer:       verifyResult.Payer,
			Network:     requirements.Network,
		}, nil
	}

	svmPayload, err := payload.DecodeSvmPayload()
	if err != nil {
		return &x402.SettleResponse{Success: false, ErrorReason: x402.ReasonInvalidSvmTransaction, Payer: verifyResult.Payer, Network: requirements.Network}, nil
	}
	tx, err := s.chain.DecodeTransaction(svmPayload.Transaction)
	if err != nil {
		return &x402.SettleResponse{Success: false, ErrorReason: x402.ReasonInvalidSvmTransaction, Payer: verifyResult.Payer, Network: requirements.Network}, nil
	}

	simResult, err := s.chain.Simulate(ctx, tx, feePayer)
	if err != nil {
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: x402.ClassifyError(err, x402.ReasonInvalidSvmSimulationFailed),
			Payer:       verifyResult.Payer,
			Network:     requirements.Network,
		}, nil
	}
	if simResult.Err != "" {
		s.logger.Warn("svm settle simulation failed", map[string]any{"error": simResult.Err, "payer": verifyResult.Payer})
		return &x402.SettleResponse{Success: false, ErrorReason: x402.ReasonInvalidSvmSimulationFailed, Payer: verifyResult.Payer, Network: requirements.Network}, nil
	}

	signature, lastValidBlockHeight, err := s.chain.Send(ctx, tx, feePayer)
	if err != nil {
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: x402.ClassifyError(err, x402.ReasonBlockchainTransactionFailed),
			Payer:       verifyResult.Payer,
			Network:     requirements.Network,
		}, nil
	}

	timeout := confirmationTimeout
	if requirements.MaxTimeoutSeconds > 0 && time.Duration(requirements.MaxTimeoutSeconds)*time.Second < timeout {
		timeout = time.Duration(requirements.MaxTimeoutSeconds) * time.Second
	}

	confirmation, err := s.chain.Confirm(ctx, signature, lastValidBlockHeight, timeout)
	if err != nil {
		reason := x402.ReasonSvmConfirmationTimedOut
		if errors.Is(err, chain.ErrSvmBlockHeightExceeded) {
			reason = x402.ReasonSvmBlockHeightExceeded
		}
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: reason,
			Payer:       verifyResult.Payer,
			Transaction: signature,
			Network:     requirements.Network,
		}, nil
	}
	if confirmation.Err != "" {
		return &x402.SettleResponse{
			Success:     false,
			ErrorReason: x402.ReasonBlockchainTransactionFailed,
			Payer:       verifyResult.Payer,
			Transaction: signature,
			Network:     requirements.Network,
		}, nil
	}

	return &x402.SettleResponse{
		Success:     true,
		Payer:       verifyResult.Payer,
		Transaction: signature,
		Network:     requirements.Network,
	}, nil
}
