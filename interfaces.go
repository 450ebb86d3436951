package x402facilitator

import "context"

// SchemeMechanism is implemented by each chain family's "exact" scheme handler
// (mechanisms/evm and mechanisms/svm) and registered with the Facade.
type SchemeMechanism interface {
	// Family reports which chain family this mechanism serves.
	Family() Family

	// Networks lists the networks this mechanism is currently prepared to serve
	// (i.e. has a configured signer for), used to build the supported() response.
	Networks() []Network

	// Extra returns mechanism-specific metadata for the supported kinds endpoint
	// ({"selectionStrategy": strategy} for EVM; {"feePayer": address} for SVM).
	Extra(network Network) map[string]interface{}

	Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*VerifyResponse, error)
	Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*SettleResponse, error)
}
