package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const correlationKey = "hub_correlation_id"

// ParseReport decodes a report body. Numbers are kept as json.Number so integer
// counts survive unchanged. Anything other than a JSON object is rejected.
func ParseReport(data []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var body interface{}
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding report: %v: %w", err, ErrInvalidReport)
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after report object: %w", ErrInvalidReport)
	}
	report, ok := body.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("report is %T, want object: %w", body, ErrInvalidReport)
	}
	return report, nil
}

// Validate checks that a report belongs to the expected dispatch. A report
// without an embedded correlation id is accepted; older producers do not stamp one.
func Validate(report map[string]interface{}, expectedCorrelationID string) error {
	raw, present := report[correlationKey]
	if !present || raw == nil || expectedCorrelationID == "" {
		return nil
	}
	got, ok := raw.(string)
	if !ok {
		return fmt.Errorf("%s is %T, want string: %w", correlationKey, raw, ErrInvalidReport)
	}
	if got != "" && got != expectedCorrelationID {
		return fmt.Errorf("%s %q does not match expected %q: %w", correlationKey, got, expectedCorrelationID, ErrInvalidReport)
	}
	return nil
}
