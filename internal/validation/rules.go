// Package validation provides custom validation rules for the application.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/capvault/internal/errors"
)

var (
	// slugRegex matches capability names, aliases and provider ids
	slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,63}$`)
	// tokenRegex matches client-chosen identifiers such as conversation ids
	tokenRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)
)

// Invocation target schemes understood by the supervisor.
const (
	SchemeExec    = "exec"
	SchemeHTTP    = "http"
	SchemeHTTPS   = "https"
	SchemeBuiltin = "builtin"
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// PassphraseStrength validates a vault passphrase before it is used to wrap the private key.
type PassphraseStrength struct {
	MinLength     int
	RequireMixed  bool
	RequireNumber bool
}

// Validate checks if the passphrase meets the configured requirements
func (p PassphraseStrength) Validate(value interface{}) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return validation.NewError("validation_passphrase_type", "passphrase must be a string")
	}

	if utf8.RuneCountInString(s) < p.MinLength {
		return validation.NewError(
			"validation_passphrase_min_length",
			fmt.Sprintf("passphrase must be at least %d characters", p.MinLength),
		)
	}

	if p.RequireMixed && (!hasUpperCase(s) || !hasLowerCase(s)) {
		return validation.NewError(
			"validation_passphrase_mixed_case",
			"passphrase must contain upper and lower case letters",
		)
	}

	if p.RequireNumber && !hasNumber(s) {
		return validation.NewError("validation_passphrase_number", "passphrase must contain at least one number")
	}

	return nil
}

// hasUpperCase checks if string contains uppercase letters
func hasUpperCase(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

// hasLowerCase checks if string contains lowercase letters
func hasLowerCase(s string) bool {
	for _, r := range s {
		if unicode.IsLower(r) {
			return true
		}
	}
	return false
}

// hasNumber checks if string contains numbers
func hasNumber(s string) bool {
	for _, r := range s {
		if unicode.IsNumber(r) {
			return true
		}
	}
	return false
}

// Slug validates lower-case identifiers such as capability names and provider ids.
var Slug = validation.NewStringRuleWithError(
	func(s string) bool {
		return slugRegex.MatchString(s)
	},
	validation.NewError("validation_slug", "must be lower case letters, digits, '.', '_' or '-'"),
)

// Token validates opaque client identifiers: letters, digits, '.', '_', ':' or '-',
// and no whitespace anywhere.
var Token = validation.NewStringRuleWithError(
	func(s string) bool {
		return tokenRegex.MatchString(s)
	},
	validation.NewError("validation_token", "must be letters, digits, '.', '_', ':' or '-'"),
)

// InvocationTarget validates an exec://, http(s):// or builtin: capability target.
var InvocationTarget = validation.NewStringRuleWithError(
	func(s string) bool {
		u, err := url.Parse(s)
		if err != nil {
			return false
		}
		switch u.Scheme {
		case SchemeExec:
			return u.Host != "" || u.Path != ""
		case SchemeHTTP, SchemeHTTPS:
			return u.Host != ""
		case SchemeBuiltin:
			return u.Opaque != ""
		default:
			return false
		}
	},
	validation.NewError(
		"validation_invocation_target",
		"must be an exec://, http://, https:// or builtin: target",
	),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)
