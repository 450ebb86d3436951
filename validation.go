package x402facilitator

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// validateOutputSchema checks that requirements.OutputSchema, when present, is
// itself a well-formed JSON Schema document, so a malformed seller-supplied
// schema fails fast as a validation error rather than surfacing later as a
// confusing client-side schema error.
func validateOutputSchema(requirements PaymentRequirements) error {
	if len(requirements.OutputSchema) == 0 {
		return nil
	}
	loader := gojsonschema.NewBytesLoader(requirements.OutputSchema)
	if _, err := gojsonschema.NewSchema(loader); err != nil {
		return fmt.Errorf("invalid output schema: %w", err)
	}
	return nil
}
