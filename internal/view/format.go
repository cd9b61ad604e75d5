package view

import (
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/celerix-dev/safari/pkg/schema"
)

// Display time is UTC shifted back a fixed seven hours. There is no DST or
// zone database involved; the shift is kept as is on purpose.
const (
	displayOffset = 7 * time.Hour
	displayLayout = "03:04:05 PM"
)

// FormatPST renders t as 12-hour clock time with seconds, after the fixed
// offset. A nil time renders as "".
func FormatPST(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Add(-displayOffset).Format(displayLayout)
}

// pst is the template function; it accepts time.Time and *time.Time.
func pst(v any) string {
	switch t := v.(type) {
	case time.Time:
		return FormatPST(&t)
	case *time.Time:
		return FormatPST(t)
	default:
		return ""
	}
}

// Fingerprint digests the displayed timestamps of items so a polling client
// can detect change without comparing the full list. It returns the first
// 8 hex characters of an xxhash64 over "created:completed" pairs joined by ",".
func Fingerprint(items []schema.ActionItem) string {
	parts := make([]string, len(items))
	for i := range items {
		parts[i] = FormatPST(&items[i].TimeCreated) + ":" + FormatPST(items[i].TimeCompleted)
	}
	sum := xxhash.Sum64String(strings.Join(parts, ","))
	return fmt.Sprintf("%016x", sum)[:8]
}
