package weather

import (
	"encoding/json"
	"fmt"
)

// EncodeReport maps a report to the opaque payload stored in a CacheEntry.
func EncodeReport(r Report) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return b, nil
}

// DecodeReport reverses EncodeReport.
func DecodeReport(payload []byte) (Report, error) {
	var r Report
	if err := json.Unmarshal(payload, &r); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}
	return r, nil
}
