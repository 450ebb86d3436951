package x402facilitator

import (
	"context"
	"sync"

	"github.com/x402-facilitator/facilitator/discovery"
	"github.com/x402-facilitator/facilitator/logging"
	"github.com/x402-facilitator/facilitator/metrics"
)

// Facade is the facilitator's single entry point: scheme+network router over the
// registered chain-family mechanisms, plus the discovery query surface. It owns no
// chain state itself — mechanisms own their verifiers/settlers, WalletPool owns
// wallets, NonceRegistry owns nonce counters.
type Facade struct {
	mu         sync.RWMutex
	mechanisms map[Family]SchemeMechanism

	discovery *discovery.Registry
	logger    logging.Logger
	metrics   metrics.Recorder
}

// NewFacade constructs an empty facade; mechanisms are attached with Register.
func NewFacade(disc *discovery.Registry, logger logging.Logger, rec metrics.Recorder) *Facade {
	if logger == nil {
		logger = logging.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Facade{
		mechanisms: make(map[Family]SchemeMechanism),
		discovery:  disc,
		logger:     logger,
		metrics:    rec,
	}
}

// Register attaches a chain-family mechanism (mechanisms/evm or mechanisms/svm).
func (f *Facade) Register(mech SchemeMechanism) *Facade {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mechanisms[mech.Family()] = mech
	return f
}

// Verify validates payload against requirements without any state-changing chain call.
func (f *Facade) Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) *VerifyResponse {
	mech, invalid := f.route(payload, requirements)
	if invalid != nil {
		return invalid
	}

	resp, err := mech.Verify(ctx, payload, requirements)
	if err != nil {
		reason := ClassifyError(err, ReasonUnexpectedVerifyError)
		f.logger.Error("verify failed", map[string]any{"reason": reason, "error": err.Error(), "network": string(requirements.Network)})
		f.metrics.IncCounter("verify_error", map[string]string{"network": string(requirements.Network), "reason": reason})
		return &VerifyResponse{IsValid: false, InvalidReason: reason}
	}
	f.metrics.IncCounter("verify", map[string]string{"network": string(requirements.Network), "valid": boolLabel(resp.IsValid)})
	return resp
}

// Settle submits payload on-chain and waits for confirmation. On success it makes a
// best-effort, non-blocking attempt to register the resource in the discovery registry.
func (f *Facade) Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) *SettleResponse {
	mech, invalid := f.route(payload, requirements)
	if invalid != nil {
		return &SettleResponse{Success: false, ErrorReason: invalid.InvalidReason, Network: requirements.Network}
	}

	resp, err := mech.Settle(ctx, payload, requirements)
	if err != nil {
		reason := ClassifyError(err, ReasonUnexpectedSettleError)
		f.logger.Error("settle failed", map[string]any{"reason": reason, "error": err.Error(), "network": string(requirements.Network)})
		f.metrics.IncCounter("settle_error", map[string]string{"network": string(requirements.Network), "reason": reason})
		return &SettleResponse{Success: false, ErrorReason: reason, Network: requirements.Network}
	}

	f.metrics.IncCounter("settle", map[string]string{"network": string(requirements.Network), "success": boolLabel(resp.Success)})

	if resp.Success && f.discovery != nil {
		go func() {
			if err := f.discovery.Register(context.Background(), requirements); err != nil {
				f.logger.Warn("discovery registration failed", map[string]any{"error": err.Error(), "resource": requirements.Resource})
			}
		}()
	}

	return resp
}

// DiscoveryList returns the page of catalogued resources matching opts. It
// reports an empty page with no error when the facade was built without a
// discovery registry.
func (f *Facade) DiscoveryList(ctx context.Context, opts discovery.ListOptions) ([]discovery.Resource, discovery.Pagination, error) {
	if f.discovery == nil {
		return nil, discovery.Pagination{Limit: opts.Limit, Offset: opts.Offset}, nil
	}
	return f.discovery.List(ctx, opts)
}

// Supported enumerates every (scheme, network) this facilitator currently serves.
func (f *Facade) Supported() SupportedResponse {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var kinds []SupportedKind
	for _, mech := range f.mechanisms {
		for _, network := range mech.Networks() {
			kinds = append(kinds, SupportedKind{
				X402Version: 1,
				Scheme:      "exact",
				Network:     network,
				Extra:       mech.Extra(network),
			})
		}
	}
	return SupportedResponse{Kinds: kinds}
}

// route applies the facade's routing rule: (scheme, network) must be ("exact", a
// registered chain family); anything else yields a structured invalid_scheme failure,
// not an error. A payload or requirements that fail shape or output-schema
// validation yield invalid_payload or invalid_payment_requirements.
func (f *Facade) route(payload PaymentPayload, requirements PaymentRequirements) (SchemeMechanism, *VerifyResponse) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	payer := ""
	if payload.Network.Family() == FamilyEVM {
		if evmPayload, err := payload.DecodeEvmPayload(); err == nil {
			payer = evmPayload.Authorization.From
		}
	}

	if requirements.Scheme != "exact" || payload.Scheme != "exact" {
		return nil, &VerifyResponse{IsValid: false, InvalidReason: ReasonInvalidScheme, Payer: payer}
	}

	if err := ValidatePaymentPayload(payload); err != nil {
		return nil, &VerifyResponse{IsValid: false, InvalidReason: ReasonInvalidPayload, Payer: payer}
	}
	if err := ValidatePaymentRequirements(requirements); err != nil {
		return nil, &VerifyResponse{IsValid: false, InvalidReason: ReasonInvalidPaymentRequirements, Payer: payer}
	}

	if err := validateOutputSchema(requirements); err != nil {
		return nil, &VerifyResponse{IsValid: false, InvalidReason: ReasonInvalidPaymentRequirements, Payer: payer}
	}

	mech, ok := f.mechanisms[requirements.Network.Family()]
	if !ok {
		return nil, &VerifyResponse{IsValid: false, InvalidReason: ReasonInvalidScheme, Payer: payer}
	}
	return mech, nil
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
