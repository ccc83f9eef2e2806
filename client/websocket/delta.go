package websocket

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ApplyDelta renders the next full text for a subscription given its
// previous text and a tab-separated sequence of copy/skip/insert
// instructions:
//
//	=N   copy the next N bytes from previous at the current cursor, advance
//	     the cursor by N.
//	-N   skip the next N bytes of previous (advance the cursor, emit
//	     nothing).
//	+S   emit S after URL-decoding it (%NN -> byte, "+" -> space).
//
// Counts are measured in bytes of previous (code units of its UTF-8
// encoding), not runes. Unknown instruction tokens and empty segments
// between consecutive tabs are silently skipped. An out-of-range =N/-N is a
// malformed delta and returns an error.
func ApplyDelta(previous []byte, delta string) ([]byte, error) {
	var out bytes.Buffer
	cursor := 0

	for _, segment := range strings.Split(delta, "\t") {
		if segment == "" {
			continue
		}

		op := segment[0]
		rest := segment[1:]

		switch op {
		case '=':
			n, err := strconv.Atoi(rest)
			if err != nil {
				continue
			}
			if n < 0 || cursor+n > len(previous) {
				return nil, fmt.Errorf("delta copy instruction out of range: cursor=%d n=%d len=%d", cursor, n, len(previous))
			}
			out.Write(previous[cursor : cursor+n])
			cursor += n

		case '-':
			n, err := strconv.Atoi(rest)
			if err != nil {
				continue
			}
			if n < 0 || cursor+n > len(previous) {
				return nil, fmt.Errorf("delta skip instruction out of range: cursor=%d n=%d len=%d", cursor, n, len(previous))
			}
			cursor += n

		case '+':
			out.WriteString(urlDecode(rest))

		default:
			continue
		}
	}

	return out.Bytes(), nil
}

// urlDecode applies %NN and "+" decoding, falling back to the raw input if it
// is not validly percent-encoded.
func urlDecode(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}
