package hmi

import (
	"fmt"

	"github.com/aretw0/hmi/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// DecodeSemantics decodes the semantics tree of a result into out, which must
// be a pointer. Field names match keys case-insensitively or via `mapstructure` tags.
// Numbers decoded from JSON are float64 and are converted to the field type.
func DecodeSemantics(result domain.HMIResult, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := dec.Decode(result.Semantics); err != nil {
		return fmt.Errorf("failed to decode semantics: %w", err)
	}
	return nil
}
