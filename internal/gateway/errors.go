package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies a gateway failure. Its value doubles as the API error_type.
type Kind string

const (
	KindAuthentication      Kind = "AuthenticationException"
	KindValidation          Kind = "InputException"
	KindIneligible          Kind = "IneligibleException"
	KindInsufficientCredits Kind = "InsufficientCreditsException"
	KindNetwork             Kind = "NetworkException"
	KindNotFound            Kind = "DataNotFound"
	KindServer              Kind = "ServerException"
)

// Sentinels for errors.Is against a *Error of the same kind
var (
	ErrAuthentication      = &Error{Kind: KindAuthentication}
	ErrValidation          = &Error{Kind: KindValidation}
	ErrIneligible          = &Error{Kind: KindIneligible}
	ErrInsufficientCredits = &Error{Kind: KindInsufficientCredits}
	ErrNetwork             = &Error{Kind: KindNetwork}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrServer              = &Error{Kind: KindServer}
)

const genericMessage = "Something went wrong. Please try again."

// Error is a classified backend failure
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Field      string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = genericMessage
	}
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (http %d): %s", e.Kind, e.StatusCode, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of a gateway error, or "" for anything else
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// endpoint class decides how an ambiguous 400 is read
type endpointClass int

const (
	classRead endpointClass = iota
	classForm
	classAction
	classInvest
)

func networkError(err error) *Error {
	return &Error{Kind: KindNetwork, Message: "The server could not be reached.", Err: err}
}

// classify turns a non-2xx backend response into an *Error
func classify(status int, body []byte, class endpointClass) *Error {
	msg, field := serverMessage(body)
	e := &Error{StatusCode: status, Message: msg, Field: field}
	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindAuthentication
	case status == http.StatusForbidden:
		e.Kind = KindIneligible
	case status == http.StatusNotFound:
		e.Kind = KindNotFound
	case status >= 500:
		e.Kind = KindServer
	case class == classInvest && strings.Contains(strings.ToLower(msg), "insufficient"):
		e.Kind = KindInsufficientCredits
	case class == classAction:
		e.Kind = KindIneligible
	case status >= 400:
		e.Kind = KindValidation
	default:
		e.Kind = KindServer
	}
	return e
}

// serverMessage extracts the human message from the backend error body shapes:
// {"error"}, {"detail"}, {"message"}, {"non_field_errors": [...]}, DRF field maps and bare lists.
func serverMessage(body []byte) (msg, field string) {
	if len(body) == 0 {
		return "", ""
	}
	var list []any
	if err := json.Unmarshal(body, &list); err == nil {
		return firstString(list), ""
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", ""
	}
	for _, k := range []string{"error", "detail", "message", "non_field_errors"} {
		if v, ok := obj[k]; ok {
			if s := firstString(v); s != "" {
				return s, ""
			}
		}
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s := firstString(obj[k]); s != "" {
			return s, k
		}
	}
	return "", ""
}

func firstString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		for _, item := range t {
			if s := firstString(item); s != "" {
				return s
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s := firstString(t[k]); s != "" {
				return s
			}
		}
	}
	return ""
}
