package svm

import (
	"context"

	x402 "github.com/x402-facilitator/facilitator"
)

// Mechanism wires Verifier and Settler together behind x402.SchemeMechanism for
// the SVM chain family.
type Mechanism struct {
	verifier  *Verifier
	settler   *Settler
	networks  []x402.Network
	feePayers map[x402.Network]string
}

func NewMechanism(verifier *Verifier, settler *Settler, networks []x402.Network, feePayers map[x402.Network]string) *Mechanism {
	return &Mechanism{verifier: verifier, settler: settler, networks: networks, feePayers: feePayers}
}

func (m *Mechanism) Family() x402.Family { return x402.FamilySVM }

func (m *Mechanism) Networks() []x402.Network { return m.networks }

func (m *Mechanism) Extra(network x402.Network) map[string]interface{} {
	return map[string]interface{}{"feePayer": m.feePayers[network]}
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
