package provider

// Error is a classified provider failure. Error() exposes only the
// user-facing message from the classification; the raw provider message
// stays internal so it can be logged but never shown to callers.
type Error struct {
	Code            string
	ProviderMessage string
	Classification  Classification
}

func (e *Error) Error() string {
	return e.Classification.UserMessage
}

func (e *Error) Retryable() bool {
	return e.Classification.Retryable
}

// NewError classifies code and wraps it as a provider error.
func NewError(code, providerMessage string) *Error {
	return &Error{
		Code:            code,
		ProviderMessage: providerMessage,
		Classification:  Classify(code),
	}
}
