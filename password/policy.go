// Package password enforces the storefront's password rules.
package password

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jrsteele09/storefront-gatekeeper/internal/config"
)

// CommonPasswords are rejected regardless of case when PreventCommon is set
var CommonPasswords = []string{
	"password", "123456", "password123", "admin", "qwerty",
	"letmein", "welcome", "monkey", "dragon",
}

// Policy is plain data so requirements can come from configuration
type Policy struct {
	MinLength           int
	MaxLength           int
	RequireUppercase    bool
	RequireLowercase    bool
	RequireNumbers      bool
	RequireSpecialChars bool
	MaxRepeatingChars   int // Longest allowed run of one character, 0 disables the check
	PreventCommon       bool
}

// Result lists every failed rule, not just the first
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

func DefaultPolicy() Policy {
	return Policy{
		MinLength:         8,
		MaxLength:         128,
		RequireUppercase:  true,
		RequireLowercase:  true,
		RequireNumbers:    true,
		MaxRepeatingChars: 3,
		PreventCommon:     true,
	}
}

func FromConfig(cfg config.PasswordConfig) Policy {
	return Policy{
		MinLength:           cfg.GetPasswordMinLength(),
		MaxLength:           cfg.GetPasswordMaxLength(),
		RequireUppercase:    cfg.GetPasswordRequireUppercase(),
		RequireLowercase:    cfg.GetPasswordRequireLowercase(),
		RequireNumbers:      cfg.GetPasswordRequireNumbers(),
		RequireSpecialChars: cfg.GetPasswordRequireSpecialChars(),
		MaxRepeatingChars:   cfg.GetPasswordMaxRepeatingChars(),
		PreventCommon:       cfg.GetPasswordPreventCommon(),
	}
}

func (p Policy) Validate(password string) Result {
	errs := []string{}
	length := utf8.RuneCountInString(password)

	if p.MinLength > 0 && length < p.MinLength {
		errs = append(errs, fmt.Sprintf("Password must be at least %d characters long", p.MinLength))
	}
	if p.MaxLength > 0 && length > p.MaxLength {
		errs = append(errs, fmt.Sprintf("Password must be no more than %d characters long", p.MaxLength))
	}
	if p.RequireUppercase && !strings.ContainsFunc(password, unicode.IsUpper) {
		errs = append(errs, "Password must contain at least one uppercase letter")
	}
	if p.RequireLowercase && !strings.ContainsFunc(password, unicode.IsLower) {
		errs = append(errs, "Password must contain at least one lowercase letter")
	}
	if p.RequireNumbers && !strings.ContainsFunc(password, unicode.IsDigit) {
		errs = append(errs, "Password must contain at least one number")
	}
	if p.RequireSpecialChars && !strings.ContainsFunc(password, isSpecial) {
		errs = append(errs, "Password must contain at least one special character")
	}
	if p.MaxRepeatingChars > 0 && longestRun(password) > p.MaxRepeatingChars {
		errs = append(errs, fmt.Sprintf("Password cannot have more than %d repeating characters", p.MaxRepeatingChars))
	}
	if p.PreventCommon && isCommon(password) {
		errs = append(errs, "Password is too common, please choose a more secure password")
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

func isSpecial(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r)
}

func longestRun(s string) int {
	longest, run := 0, 0
	var prev rune
	for i, r := range []rune(s) {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
		prev = r
	}
	return longest
}

func isCommon(password string) bool {
	for _, common := range CommonPasswords {
		if strings.EqualFold(password, common) {
			return true
		}
	}
	return false
}
