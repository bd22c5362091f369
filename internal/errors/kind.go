package errors

import (
	"errors"
	"net/http"
)

// Kind is the closed set of failure classes the indexing pipeline reacts to.
type Kind int

const (
	// KindGeneric is any failure without special handling.
	KindGeneric Kind = iota
	// KindRateLimited means the provider asked us to slow down.
	KindRateLimited
	// KindInvalidCredentials means the provider rejected the API key.
	KindInvalidCredentials
	// KindMissingCredentials means no API key was configured.
	KindMissingCredentials
	// KindMissingBaseURL means the provider endpoint was not configured.
	KindMissingBaseURL
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindMissingCredentials:
		return "missing_credentials"
	case KindMissingBaseURL:
		return "missing_base_url"
	default:
		return "generic"
	}
}

// IsConfiguration reports whether the kind can only be fixed by the user
// changing settings.
func (k Kind) IsConfiguration() bool {
	switch k {
	case KindInvalidCredentials, KindMissingCredentials, KindMissingBaseURL:
		return true
	default:
		return false
	}
}

// As returns the first VaultError in err's chain.
func As(err error) (*VaultError, bool) {
	if err == nil {
		return nil, false
	}
	var ve *VaultError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// KindOf classifies err. Errors outside the VaultError family are generic,
// except that any error carrying an HTTP 429 status is rate limited.
func KindOf(err error) Kind {
	if err == nil {
		return KindGeneric
	}
	if ve, ok := As(err); ok && ve.Kind != KindGeneric {
		return ve.Kind
	}
	if HTTPStatusOf(err) == http.StatusTooManyRequests {
		return KindRateLimited
	}
	return KindGeneric
}

// HTTPStatusOf returns the HTTP status carried anywhere in err's chain, or 0.
func HTTPStatusOf(err error) int {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if sc, ok := e.(interface{ StatusCode() int }); ok && sc.StatusCode() != 0 {
			return sc.StatusCode()
		}
	}
	return 0
}

// IsRateLimited reports whether err is a rate-limit condition.
func IsRateLimited(err error) bool {
	return KindOf(err) == KindRateLimited
}

// IsConfigurationError reports whether err is a credential or endpoint
// configuration failure.
func IsConfigurationError(err error) bool {
	return KindOf(err).IsConfiguration()
}

// RateLimited creates a rate-limit error for the given provider.
func RateLimited(provider string, cause error) *VaultError {
	return New(ErrCodeRateLimited, provider+" rate limit exceeded", cause).
		WithDetail("provider", provider).
		WithStatus(http.StatusTooManyRequests)
}

// InvalidCredentials creates an error for a rejected API key.
func InvalidCredentials(provider string, cause error) *VaultError {
	return New(ErrCodeInvalidCredentials, provider+" API key is invalid", cause).
		WithDetail("provider", provider).
		WithSuggestion("Check the API key configured for " + provider)
}

// MissingCredentials creates an error for an unset API key.
func MissingCredentials(provider, envVar string) *VaultError {
	return New(ErrCodeMissingCredentials, provider+" API key is not set", nil).
		WithDetail("provider", provider).
		WithSuggestion("Set " + envVar + " in your environment or .env file")
}

// MissingBaseURL creates an error for an unset provider endpoint.
func MissingBaseURL(provider string) *VaultError {
	return New(ErrCodeMissingBaseURL, provider+" base URL is not set", nil).
		WithDetail("provider", provider).
		WithSuggestion("Set embeddings.host in .vaultrag.yaml")
}

// ProviderError creates a generic provider failure carrying its HTTP status.
// Server-side (5xx) failures are retryable.
func ProviderError(provider string, status int, message string) *VaultError {
	err := New(ErrCodeProviderFailed, message, nil).
		WithDetail("provider", provider).
		WithStatus(status)
	err.Retryable = status >= 500
	return err
}
