package errors

import (
	"fmt"
)

// VaultError is the error type returned across vaultrag packages. Code
// identifies the failure; Kind, Category, Severity and Retryable follow from
// it unless a constructor overrides them.
type VaultError struct {
	Code     string // e.g. ERR_201_FILE_NOT_FOUND
	Kind     Kind
	Message  string
	Category Category
	Severity Severity

	// Details are logged and shown with --debug, e.g. path, provider, model.
	Details map[string]string
	Cause   error

	Retryable bool

	// HTTPStatus is the embedding or search provider's response status.
	HTTPStatus int

	// Suggestion is the hint printed under the message.
	Suggestion string
}

func (e *VaultError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *VaultError) Unwrap() error {
	return e.Cause
}

// Is matches any *VaultError with the same code, so sentinel comparisons
// like errors.Is(err, &VaultError{Code: ErrCodeStoreLocked}) work.
func (e *VaultError) Is(target error) bool {
	t, ok := target.(*VaultError)
	return ok && e.Code == t.Code
}

// StatusCode returns HTTPStatus.
func (e *VaultError) StatusCode() int {
	return e.HTTPStatus
}

// WithDetail sets one detail and returns e.
func (e *VaultError) WithDetail(key, value string) *VaultError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion sets the user hint and returns e.
func (e *VaultError) WithSuggestion(suggestion string) *VaultError {
	e.Suggestion = suggestion
	return e
}

// WithStatus records the provider's HTTP response status.
func (e *VaultError) WithStatus(status int) *VaultError {
	e.HTTPStatus = status
	return e
}

// New builds a VaultError whose classification is derived from code.
func New(code string, message string, cause error) *VaultError {
	return &VaultError{
		Code:      code,
		Kind:      kindFromCode(code),
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap uses err's text as the message. A nil err gives nil.
func Wrap(code string, err error) *VaultError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError reports a bad .vaultrag.yaml value or provider setting.
func ConfigError(message string, cause error) *VaultError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError reports a failed read or write of a note, the store or its lock.
func IOError(message string, cause error) *VaultError {
	return New(ErrCodeFileRead, message, cause)
}

// ValidationError reports bad command input, such as a path outside the vault.
func ValidationError(message string, cause error) *VaultError {
	return New(ErrCodeInvalidInput, message, cause)
}

func InternalError(message string, cause error) *VaultError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether err's chain holds a retryable VaultError.
func IsRetryable(err error) bool {
	ve, ok := As(err)
	return ok && ve.Retryable
}

// IsFatal reports whether err's chain holds a fatal VaultError.
func IsFatal(err error) bool {
	ve, ok := As(err)
	return ok && ve.Severity == SeverityFatal
}

// GetCode returns the code of the first VaultError in err's chain, or "".
func GetCode(err error) string {
	if ve, ok := As(err); ok {
		return ve.Code
	}
	return ""
}
