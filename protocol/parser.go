package protocol

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var responsePattern = regexp.MustCompile(`^(\d+)\s+result=(-?\d+)(?:\s+\((.*)\))?(?:\s+endpos=(-?\d+))?`)

// ReadHeader reads `key: value` lines from r until a blank line and returns
// them as a Header.
//
// Each line is split on its first ':', both sides are trimmed and KeyPrefix
// is stripped from the key. A repeated key overwrites the earlier value.
// If r fails before the blank line is seen the error wraps both
// ErrMalformedHeader and the cause, a partial header is never returned.
func ReadHeader(ctx context.Context, r LineReader) (*Header, error) {
	h := newHeader()

	for {
		line, err := r.ReadLine(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: read %d variables: %w", ErrMalformedHeader, h.Len(), err)
		}

		line = strings.TrimRightFunc(line, unicode.IsSpace)
		if line == "" {
			return h, nil
		}

		key, value := splitHeaderLine(line)
		h.set(key, value)
	}
}

func splitHeaderLine(line string) (key string, value string) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return NormalizeKey(line), ""
	}

	return NormalizeKey(line[:i]), strings.TrimSpace(line[i+1:])
}

// ParseResponse parses a reply line of the form
//
//   <code> result=<n>[ (<note>)][ endpos=<n>]
//
// It never fails, the fields of parts that are absent (or the whole line if
// it doesn't match) are left nil.
func ParseResponse(raw string) *Response {
	resp := &Response{Raw: raw}

	m := responsePattern.FindStringSubmatchIndex(raw)
	if m == nil {
		return resp
	}

	group := func(n int) (string, bool) {
		if m[2*n] < 0 {
			return "", false
		}
		return raw[m[2*n]:m[2*n+1]], true
	}

	resp.Code = parseIntGroup(group(1))
	resp.Result = parseIntGroup(group(2))

	if note, ok := group(3); ok {
		resp.Note = &note
	}

	resp.EndPos = parseIntGroup(group(4))

	return resp
}

func parseIntGroup(s string, ok bool) *int {
	if !ok {
		return nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		// Out of range, treat it like the group was never sent
		return nil
	}

	return &n
}

// TrimTerminator removes the trailing "\n", and an optional "\r" before it.
func TrimTerminator(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return RemoveTrailingCR(line)
}

func RemoveTrailingCR(line string) string {
	return strings.TrimSuffix(line, "\r")
}
