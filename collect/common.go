package collect

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// ProviderError is a request the provider received and rejected.
type ProviderError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Reasons []string `json:"reasons,omitempty"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider rejected request: code %d: %s", e.Code, e.Message)
}

func newProviderError(gErr *googleapi.Error) *ProviderError {
	pe := &ProviderError{Code: gErr.Code, Message: gErr.Message}
	for _, item := range gErr.Errors {
		pe.Reasons = append(pe.Reasons, item.Reason)
	}
	if pe.Message == "" {
		pe.Message = http.StatusText(gErr.Code)
	}
	return pe
}

// IsRetryable reports whether err is a rate limit style rejection that is
// worth retrying after a delay.
func IsRetryable(err error) bool {
	var googleErr *googleapi.Error
	if errors.As(err, &googleErr) {
		return googleErr.Code == http.StatusForbidden || googleErr.Code == http.StatusTooManyRequests
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Code == http.StatusForbidden || providerErr.Code == http.StatusTooManyRequests
	}
	return false
}

// IsTokenExpired reports whether err comes from a failed credential refresh.
func IsTokenExpired(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	return errors.As(err, &retrieveErr)
}
