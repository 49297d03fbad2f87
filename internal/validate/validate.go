// Package validate checks contact form input. Messages are in Spanish
// because they are returned to site visitors as-is.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MsgRequired   = "Este campo es requerido"
	MsgFormat     = "El formato no es válido"
	MsgInvalid    = "El valor no es válido"
	MsgEmail      = "Ingrese un email válido"
	MsgPhone      = "Ingrese un teléfono válido (ej: +56 9 1234 5678)"
	MsgRUTLength  = "RUT debe tener entre 8 y 9 caracteres"
	MsgRUTInvalid = "RUT no es válido"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^(\+56)?[2-9]\d{7,8}$`)
)

// Rule describes the checks applied to a single field. Length limits
// count characters, not bytes. Message replaces every default message.
type Rule struct {
	Required  bool
	MinLength int
	MaxLength int
	Pattern   *regexp.Regexp
	Custom    func(string) bool
	Message   string
}

type Result struct {
	Valid  bool
	Errors []string
}

func ok() Result { return Result{Valid: true} }

func fail(msgs ...string) Result { return Result{Valid: false, Errors: msgs} }

// Field applies rule to value. An empty value only fails Required; the
// other checks are skipped for optional fields left blank.
func Field(value string, rule Rule) Result {
	msg := func(def string) string {
		if rule.Message != "" {
			return rule.Message
		}
		return def
	}

	if rule.Required && strings.TrimSpace(value) == "" {
		return fail(msg(MsgRequired))
	}
	if value == "" {
		return ok()
	}

	var errs []string
	n := utf8.RuneCountInString(value)
	if rule.MinLength > 0 && n < rule.MinLength {
		errs = append(errs, msg(fmt.Sprintf("Debe tener al menos %d caracteres", rule.MinLength)))
	}
	if rule.MaxLength > 0 && n > rule.MaxLength {
		errs = append(errs, msg(fmt.Sprintf("No debe exceder %d caracteres", rule.MaxLength)))
	}
	if rule.Pattern != nil && !rule.Pattern.MatchString(value) {
		errs = append(errs, msg(MsgFormat))
	}
	if rule.Custom != nil && !rule.Custom(value) {
		errs = append(errs, msg(MsgInvalid))
	}
	if len(errs) > 0 {
		return fail(errs...)
	}
	return ok()
}

func Email(email string) Result {
	return Field(email, Rule{Required: true, Pattern: emailPattern, Message: MsgEmail})
}

// Phone accepts Chilean numbers with an optional +56 prefix. Spaces and
// dashes are ignored. An empty phone is valid.
func Phone(phone string) Result {
	return Field(CleanPhone(phone), Rule{Pattern: phonePattern, Message: MsgPhone})
}

func CleanPhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' {
			return -1
		}
		return r
	}, phone)
}

// RUT validates a Chilean RUT such as "12.345.678-5". Everything but
// digits and K is ignored before checking the length and check digit.
func RUT(rut string) Result {
	clean := CleanRUT(rut)
	if n := len(clean); n < 8 || n > 9 {
		return fail(MsgRUTLength)
	}

	body, dv := clean[:len(clean)-1], clean[len(clean)-1:]
	want, valid := rutCheckDigit(body)
	if !valid || dv != want {
		return fail(MsgRUTInvalid)
	}
	return ok()
}

// CleanRUT strips formatting and upper-cases the check digit.
func CleanRUT(rut string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9':
			return r
		case r == 'k' || r == 'K':
			return 'K'
		}
		return -1
	}, rut)
}

// rutCheckDigit is the mod-11 check digit over body with weights 2..7
// cycling from the rightmost digit.
func rutCheckDigit(body string) (string, bool) {
	sum, weight := 0, 2
	for i := len(body) - 1; i >= 0; i-- {
		c := body[i]
		if c < '0' || c > '9' {
			return "", false
		}
		sum += int(c-'0') * weight
		weight++
		if weight > 7 {
			weight = 2
		}
	}
	switch d := 11 - sum%11; d {
	case 11:
		return "0", true
	case 10:
		return "K", true
	default:
		return fmt.Sprint(d), true
	}
}

// Form validates each field named in rules against data.
func Form(data map[string]string, rules map[string]Rule) map[string]Result {
	out := make(map[string]Result, len(rules))
	for field, rule := range rules {
		out[field] = Field(data[field], rule)
	}
	return out
}

func HasErrors(results map[string]Result) bool {
	for _, r := range results {
		if !r.Valid {
			return true
		}
	}
	return false
}

// Errors flattens results to field -> messages, keeping only failures.
func Errors(results map[string]Result) map[string][]string {
	out := make(map[string][]string)
	for field, r := range results {
		if !r.Valid {
			out[field] = r.Errors
		}
	}
	return out
}

// Sanitize trims s and keeps only letters, digits, whitespace and @ . - _
// for single-line fields such as names.
func Sanitize(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
			return r
		case r == '@' || r == '.' || r == '-' || r == '_':
			return r
		}
		return -1
	}, s))
}

// SanitizeText trims s and drops angle brackets and control characters
// other than newline and tab, for free-text fields.
func SanitizeText(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch {
		case r == '<' || r == '>':
			return -1
		case r == '\n' || r == '\t':
			return r
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s))
}
