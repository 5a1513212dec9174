package crawler

import (
	"strconv"
	"strings"
)

const maxDurationFields = 3

// ParseDuration converts an "h:m:s" broadcast duration into seconds. Fewer
// than three fields are padded with zero-valued higher units, so "1:02" is
// 62 seconds and "5" is 5 seconds. Field magnitudes are not range checked.
func ParseDuration(raw string) (int, error) {
	parts := strings.Split(raw, ":")
	if len(parts) > maxDurationFields {
		return 0, &MalformedDurationError{
			Input:  raw,
			Reason: strconv.Itoa(len(parts)) + " fields, at most 3 allowed",
		}
	}
	padded := make([]string, maxDurationFields-len(parts), maxDurationFields)
	for i := range padded {
		padded[i] = "0"
	}
	padded = append(padded, parts...)

	total := 0
	for _, field := range padded {
		n, err := strconv.ParseUint(strings.TrimSpace(field), 10, 31)
		if err != nil {
			return 0, &MalformedDurationError{Input: raw, Reason: "field " + strconv.Quote(field) + " is not a non-negative integer"}
		}
		total = total*60 + int(n)
	}
	return total, nil
}

// EpochCount returns how many poll cycles a session runs for a broadcast of
// the given length: floor(seconds / rate / interval) + 1.
func EpochCount(seconds int, playbackRate float64, pollIntervalSeconds float64) int {
	if playbackRate <= 0 || pollIntervalSeconds <= 0 {
		return 1
	}
	return int(float64(seconds)/playbackRate/pollIntervalSeconds) + 1
}
