// Package utils holds small parsing helpers shared by the HTTP layer.
package utils

import "strconv"

// Page bounds used by list endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AtoiDefault converts s with strconv.Atoi, returning def when s is empty
// or not an integer.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampPage parses raw page and page_size query values. page is at least 1;
// size falls in [1, MaxPageSize] and defaults to DefaultPageSize.
func ClampPage(rawPage, rawSize string) (page, size int) {
	page = max(AtoiDefault(rawPage, 1), 1)
	size = AtoiDefault(rawSize, DefaultPageSize)
	return page, min(max(size, 1), MaxPageSize)
}

// PositiveID parses a strictly positive base-10 int64.
func PositiveID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
