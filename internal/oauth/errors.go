package oauth

import "strings"

type ErrorCode string

// Values WHOOP may send in the callback's error parameter.
const (
	ErrorCodeAccessDenied   ErrorCode = "access_denied"
	ErrorCodeInvalidRequest ErrorCode = "invalid_request"
	ErrorCodeInvalidScope   ErrorCode = "invalid_scope"
	ErrorCodeServerError    ErrorCode = "server_error"
)

const (
	ParamState            = "state"
	ParamCode             = "code"
	ParamScope            = "scope"
	ParamError            = "error"
	ParamErrorDescription = "error_description"
)

// ParseScopes splits a scope string on spaces or commas; WHOOP accepts either.
func ParseScopes(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ','
	})
}
