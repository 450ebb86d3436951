package evm

import (
	"context"

	x402 "github.com/x402-facilitator/facilitator"
	"github.com/x402-facilitator/facilitator/mechanisms/evm/walletpool"
)

// Mechanism wires Verifier and Settler together behind x402.SchemeMechanism.
type Mechanism struct {
	verifier *Verifier
	settler  *Settler
	networks []x402.Network
}

func NewMechanism(verifier *Verifier, settler *Settler, networks []x402.Network) *Mechanism {
	return &Mechanism{verifier: verifier, settler: settler, networks: networks}
}

func (m *Mechanism) Family() x402.Family { return x402.FamilyEVM }

func (m *Mechanism) Networks() []x402.Network { return m.networks }

func (m *Mechanism) Extra(network x402.Network) map[string]interface{} {
	return map[string]interface{}{
		"selectionStrategy": string(walletpool.StrategyHybrid),
	}
}

func (m *Mechanism) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.VerifyResponse, error) {
	if !m.allowsNetwork(requirements.Network) {
		return &x402.VerifyResponse{IsValid: false, InvalidReason: x402.ReasonNetworkNotAllowed}, nil
	}
	return m.verifier.Verify(ctx, payload, requirements)
}

func (m *Mechanism) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.SettleResponse, error) {
	if !m.allowsNetwork(requirements.Network) {
		return &x402.SettleResponse{Success: false, ErrorReason: x402.ReasonNetworkNotAllowed}, nil
	}
	return m.settler.Settle(ctx, payload, requirements)
}

func (m *Mechanism) allowsNetwork(network x402.Network) bool {
	for _, n := range m.networks {
		if n == network {
			return true
		}
	}
	return false
}
