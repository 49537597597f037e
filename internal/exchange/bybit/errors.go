package bybit

import (
	"context"
	"errors"
	"fmt"
)

// APIError is a non-zero retCode returned by the exchange.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit api error %d: %s", e.Code, e.Message)
}

// Error codes the market-data surface can hit.
const (
	ErrCodeParamInvalid = 10001
	ErrCodeRateLimited  = 10006
)

// ParseAPIError converts a response retCode into an error, nil when the
// request succeeded.
func ParseAPIError(retCode int, retMsg string) error {
	if retCode == 0 {
		return nil
	}
	return &APIError{Code: retCode, Message: retMsg}
}

// IsRetryable reports whether a request is worth repeating: rate limits and
// server-side failures are, malformed requests and cancelled contexts are not.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == ErrCodeRateLimited || (apiErr.Code >= 500 && apiErr.Code < 600)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Anything else is a transport failure.
	return true
}
