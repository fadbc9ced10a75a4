package utils

import (
	"strconv"
	"unicode"
	"unicode/utf8"
)

// StringToInt converts string to int, returns 0 if error
func StringToInt(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return i
}

// ParseID parses a positive numeric identifier from a path segment.
func ParseID(s string) (uint, bool) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// Pagination clamps page and per-page query values. Empty or invalid values
// fall back to the defaults; perPage is capped at max.
func Pagination(pageStr, perPageStr string, defPerPage, max int) (page, perPage int) {
	page = StringToInt(pageStr)
	if page < 1 {
		page = 1
	}
	perPage = StringToInt(perPageStr)
	if perPage < 1 {
		perPage = defPerPage
	}
	if perPage > max {
		perPage = max
	}
	return page, perPage
}

// Capitalize upper-cases the first letter of s.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
