package devd

import (
	"fmt"
	"strings"
)

// parseDetails splits a run of space separated key=value tokens. An empty
// token (end of text or a double space) ends the list. A token without '='
// invalidates the whole list.
func parseDetails(text string) (Details, error) {
	var details Details
	for {
		token, rest, more := strings.Cut(text, " ")
		if token == "" {
			return details, nil
		}

		key, value, ok := strings.Cut(token, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMalformedDetail, token)
		}
		details = append(details, Detail{Key: key, Value: value})

		if !more {
			return details, nil
		}
		text = rest
	}
}
