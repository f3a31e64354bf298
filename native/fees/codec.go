package fees

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UnmarshalTOML accepts both snake_case and camelCase keys so genesis files
// can follow either convention.
func (p *Params) UnmarshalTOML(data interface{}) error {
	table, ok := data.(map[string]interface{})
	if !ok {
		return fmt.Errorf("fees: params must decode from a table")
	}
	normalized := normalizeParamsTable(table)

	type alias Params
	decoded := alias(*p)
	blob, err := json.Marshal(normalized)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(blob, &decoded); err != nil {
		return fmt.Errorf("fees: %w", err)
	}
	*p = Params(decoded)
	return nil
}

func normalizeParamsTable(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for key, value := range in {
		switch {
		case strings.EqualFold(key, "burn_fee_divisor"):
			out["burnFeeDivisor"] = value
		case strings.EqualFold(key, "native_sent_fee_divisor"):
			out["nativeSentFeeDivisor"] = value
		case strings.EqualFold(key, "referrer_fee_share"):
			out["referrerFeeShare"] = value
		default:
			out[key] = value
		}
	}
	return out
}
