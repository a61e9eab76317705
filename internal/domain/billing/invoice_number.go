package billing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// InvoicePrefix returns the per-month number prefix, e.g. "INV-202403-"
func InvoicePrefix(t time.Time) string {
	return fmt.Sprintf("INV-%04d%02d-", t.Year(), int(t.Month()))
}

// FormatInvoiceNumber renders a sequence under a prefix, zero-padded to 4 digits
func FormatInvoiceNumber(prefix string, seq int) string {
	return fmt.Sprintf("%s%04d", prefix, seq)
}

// ParseInvoiceSequence extracts the sequence from a number carrying prefix.
// ok is false when the number does not belong to the prefix.
func ParseInvoiceSequence(prefix, number string) (int, bool) {
	rest, found := strings.CutPrefix(number, prefix)
	if !found || rest == "" {
		return 0, false
	}
	seq, err := strconv.Atoi(rest)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}

// NextSequence returns one more than the highest sequence among numbers under prefix,
// or 1 when there are none.
func NextSequence(prefix string, numbers []string) int {
	highest := 0
	for _, n := range numbers {
		if seq, ok := ParseInvoiceSequence(prefix, n); ok && seq > highest {
			highest = seq
		}
	}
	return highest + 1
}
