package x402facilitator

import "fmt"

// ValidatePaymentPayload performs shape validation on a payment payload before any
// mechanism-specific decoding.
func ValidatePaymentPayload(p PaymentPayload) error {
	if p.X402Version != 1 {
		return fmt.Errorf("unsupported x402 version: %d", p.X402Version)
	}
	if p.Scheme == "" {
		return fmt.Errorf("payment scheme is required")
	}
	if p.Network == "" {
		return fmt.Errorf("payment network is required")
	}
	if p.Payload == nil {
		return fmt.Errorf("payment payload is required")
	}
	return nil
}

// ValidatePaymentRequirements performs shape validation on payment requirements.
func ValidatePaymentRequirements(r PaymentRequirements) error {
	if r.Scheme == "" {
		return fmt.Errorf("payment scheme is required")
	}
	if r.Network == "" {
		return fmt.Errorf("payment network is required")
	}
	if r.Asset == "" {
		return fmt.Errorf("payment asset is required")
	}
	if r.MaxAmountRequired == "" {
		return fmt.Errorf("maxAmountRequired is required")
	}
	if r.PayTo == "" {
		return fmt.Errorf("payment recipient is required")
	}
	return nil
}

// findByNetwork looks up a per-network registration, trying an exact match first and
// falling back to CAIP wildcard pattern matching in either direction.
func findByNetwork[T any](byNetwork map[Network]T, network Network) (T, bool) {
	if v, ok := byNetwork[network]; ok {
		return v, true
	}
	for registered, v := range byNetwork {
		if network.Match(registered) || registered.Match(network) {
			return v, true
		}
	}
	var zero T
	return zero, false
}
