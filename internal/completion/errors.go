package completion

import (
	"encoding/json"
	"fmt"
	"strings"

	"AssistChat/internal/backend"
)

// ConnectivityMessage is shown when the provider gave no usable explanation.
const ConnectivityMessage = "Failed to connect to the AI service. Please check your internet or API configuration."

// ProviderError reports a failed completion. Message is safe to show in the
// conversation; Err keeps the underlying cause for logs.
type ProviderError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func connectivityError(err error) *ProviderError {
	return &ProviderError{Message: ConnectivityMessage, Err: err}
}

// statusError builds a ProviderError from a non-2xx response, preferring the
// provider's own error.message.
func statusError(status int, body []byte) *ProviderError {
	cause := fmt.Errorf("API error: status %d - %s", status, strings.TrimSpace(string(body)))

	var envelope backend.OpenAIErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return &ProviderError{StatusCode: status, Message: envelope.Error.Message, Err: cause}
	}
	return &ProviderError{StatusCode: status, Message: ConnectivityMessage, Err: cause}
}
