package errors

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// FormatForUser renders err as a multi-line message with the suggestion
// and code. debug adds the cause. Errors outside the VaultError family are
// returned as is.
func FormatForUser(err error, debug bool) string {
	if err == nil {
		return ""
	}
	ve, ok := As(err)
	if !ok {
		return err.Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", ve.Message)
	if ve.Suggestion != "" {
		fmt.Fprintf(&sb, "\nSuggestion: %s\n", ve.Suggestion)
	}
	if debug && ve.Cause != nil {
		fmt.Fprintf(&sb, "\nCause: %s\n", ve.Cause)
	}
	fmt.Fprintf(&sb, "\n[%s]", ve.Code)
	return sb.String()
}

// FormatForCLI renders err in three lines at most:
//
//	Error: <message>
//	  Hint: <suggestion>
//	  Code: <code>
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}
	ve, ok := As(err)
	if !ok {
		ve = Wrap(ErrCodeInternal, err)
	}

	out := "Error: " + ve.Message + "\n"
	if ve.Suggestion != "" {
		out += "  Hint: " + ve.Suggestion + "\n"
	}
	return out + "  Code: " + ve.Code + "\n"
}

// LogAttr is the "error" attribute for structured logs. A VaultError
// becomes a group carrying its code, kind and details so log lines can be
// filtered by code.
func LogAttr(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	ve, ok := As(err)
	if !ok {
		return slog.String("error", err.Error())
	}

	attrs := []any{
		slog.String("message", ve.Message),
		slog.String("code", ve.Code),
		slog.String("kind", ve.Kind.String()),
	}
	if ve.HTTPStatus != 0 {
		attrs = append(attrs, slog.Int("http_status", ve.HTTPStatus))
	}
	if ve.Retryable {
		attrs = append(attrs, slog.Bool("retryable", true))
	}
	if ve.Cause != nil {
		attrs = append(attrs, slog.String("cause", ve.Cause.Error()))
	}

	keys := make([]string, 0, len(ve.Details))
	for k := range ve.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, ve.Details[k]))
	}

	return slog.Group("error", attrs...)
}
