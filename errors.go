package x402facilitator

import (
	"fmt"
	"strings"
)

// Reason codes returned in VerifyResponse.InvalidReason and SettleResponse.ErrorReason.
// These are wire-visible strings, not Go error types; callers switch on them directly.
const (
	// Validation
	ReasonInvalidX402Version         = "invalid_x402_version"
	ReasonInvalidScheme              = "invalid_scheme"
	ReasonInvalidNetwork             = "invalid_network"
	ReasonInvalidPayload             = "invalid_payload"
	ReasonInvalidPaymentRequirements = "invalid_payment_requirements"
	ReasonNetworkNotAllowed          = "network_not_allowed"

	// Semantic
	ReasonPaymentExpired          = "payment_expired"
	ReasonInsufficientFunds       = "insufficient_funds"
	ReasonInvalidPayment          = "invalid_payment"
	ReasonInvalidTransactionState = "invalid_transaction_state"

	// EVM signature / authorization
	ReasonInvalidEvmSignature         = "invalid_exact_evm_payload_signature"
	ReasonInvalidEvmValidAfter        = "invalid_exact_evm_payload_authorization_valid_after"
	ReasonInvalidEvmValidBefore       = "invalid_exact_evm_payload_authorization_valid_before"
	ReasonInvalidEvmValue             = "invalid_exact_evm_payload_authorization_value"
	ReasonInvalidEvmRecipientMismatch = "invalid_exact_evm_payload_recipient_mismatch"

	// SVM structural
	ReasonInvalidSvmTransaction       = "invalid_exact_svm_payload_transaction"
	ReasonInvalidSvmInstructions      = "invalid_exact_svm_payload_transaction_instructions"
	ReasonInvalidSvmAmountMismatch    = "invalid_exact_svm_payload_transaction_amount_mismatch"
	ReasonInvalidSvmSimulationFailed  = "invalid_exact_svm_payload_transaction_simulation_failed"

	// Settlement / RPC
	ReasonRPCConnectionFailed         = "rpc_connection_failed"
	ReasonBlockchainTransactionFailed = "blockchain_transaction_failed"
	ReasonSvmBlockHeightExceeded      = "settle_exact_svm_block_height_exceeded"
	ReasonSvmConfirmationTimedOut     = "settle_exact_svm_transaction_confirmation_timed_out"
	ReasonInsufficientFacilitatorGas  = "insufficient_facilitator_gas_balance"
	ReasonAllWalletsBusy              = "all_wallets_busy"
	ReasonNoWalletsConfigured         = "no_wallets_configured"
	ReasonAllWalletsUnhealthy         = "all_unhealthy"

	// Unknown
	ReasonUnexpectedVerifyError = "unexpected_verify_error"
	ReasonUnexpectedSettleError = "unexpected_settle_error"
)

// FacilitatorError is the only exported error type the core constructs. It carries a
// taxonomy reason alongside structured context for logging. It is never used for
// control flow inside verify/settle (those always return result structs); it exists
// for genuinely exceptional conditions the facade still wants classified before logging.
type FacilitatorError struct {
	Reason  string
	Message string
	Details map[string]interface{}
}

func (e *FacilitatorError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func NewFacilitatorError(reason, message string, details map[string]interface{}) *FacilitatorError {
	return &FacilitatorError{Reason: reason, Message: message, Details: details}
}

// ClassifyError maps a lower-layer error to a taxonomy reason by substring inspection
// for unexpected errors surfacing from chain ports: a *FacilitatorError keeps its own
// reason; otherwise RPC connectivity, signature, insufficient-funds and nonce/mempool
// errors map to their reasons, and anything else maps to fallback.
func ClassifyError(err error, fallback string) string {
	if err == nil {
		return ""
	}
	if fe, ok := err.(*FacilitatorError); ok {
		return fe.Reason
	}
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "connection refused", "no such host", "dial tcp", "context deadline exceeded"):
		return ReasonRPCConnectionFailed
	case containsAny(msg, "signature", "recover"):
		return ReasonInvalidPayment
	case containsAny(msg, "insufficient funds", "insufficient balance"):
		return ReasonInsufficientFunds
	case containsAny(msg, "nonce", "replacement transaction underpriced", "already known"):
		return ReasonBlockchainTransactionFailed
	default:
		return fallback
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
