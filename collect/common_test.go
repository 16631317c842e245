package collect

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&googleapi.Error{Code: 429}))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", &googleapi.Error{Code: 403})))
	assert.True(t, IsRetryable(&ProviderError{Code: 429}))
	assert.False(t, IsRetryable(&googleapi.Error{Code: 404}))
	assert.False(t, IsRetryable(&googleapi.Error{Code: 500}))
	assert.False(t, IsRetryable(errors.New("connection reset")))
	assert.False(t, IsRetryable(nil))
}

func TestIsTokenExpired(t *testing.T) {
	err := fmt.Errorf("failed to send batch request: %w", &oauth2.RetrieveError{ErrorCode: "invalid_grant"})
	assert.True(t, IsTokenExpired(err))
	assert.False(t, IsTokenExpired(&googleapi.Error{Code: 401}))
}

func TestProviderErrorFallsBackToStatusText(t *testing.T) {
	pe := newProviderError(&googleapi.Error{Code: 400, Errors: []googleapi.ErrorItem{{Reason: "badRequest"}}})
	assert.Equal(t, "Bad Request", pe.Message)
	assert.Equal(t, []string{"badRequest"}, pe.Reasons)
	assert.Contains(t, pe.Error(), "400")
}
