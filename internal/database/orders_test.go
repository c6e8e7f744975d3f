package database

import (
	"fmt"
	"regexp"
	"strconv"
	"testing"
	"time"
)

// Order numbers are formatted POS-YYYYMMDD-NNN by the order services. The
// daily sequence query extracts the trailing counter with a fixed substring
// offset; this pins the offset to the format so neither can drift alone.
func TestGetNextOrderNumberQueryOffset(t *testing.T) {
	day := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	sample := fmt.Sprintf("POS-%s-%03d", day.Format("20060102"), 17)

	m := regexp.MustCompile(`SUBSTRING\(order_number FROM (\d+)\)`).FindStringSubmatch(getNextOrderNumber)
	if m == nil {
		t.Fatalf("query does not extract the sequence by offset:\n%s", getNextOrderNumber)
	}
	offset, err := strconv.Atoi(m[1])
	if err != nil {
		t.Fatalf("parse offset %q: %v", m[1], err)
	}

	// SQL SUBSTRING offsets are 1-based.
	tail := sample[offset-1:]
	n, err := strconv.Atoi(tail)
	if err != nil {
		t.Fatalf("substring from %d of %q is %q, which CAST AS INTEGER would reject: %v", offset, sample, tail, err)
	}
	if n != 17 {
		t.Errorf("extracted sequence: got %d, want 17", n)
	}
}
