package node

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when the requested height is beyond the node's peak
// or the requested block is unknown to the node.
var ErrNotFound = errors.New("not found on node")

// APIError is a request the node answered with success=false.
type APIError struct {
	Endpoint string
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("node %s: %s", e.Endpoint, e.Message)
}

// Unwrap maps "not in chain" style messages to ErrNotFound.
func (e *APIError) Unwrap() error {
	if isNotFoundMessage(e.Message) {
		return ErrNotFound
	}
	return nil
}

var notFoundPatterns = []string{
	"not found",
	"not in blockchain",
	"does not exist",
}

func isNotFoundMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, p := range notFoundPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
