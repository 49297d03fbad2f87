package validate

import (
	"reflect"
	"regexp"
	"testing"
)

func TestField(t *testing.T) {
	digits := regexp.MustCompile(`^\d+$`)

	tests := []struct {
		name  string
		value string
		rule  Rule
		want  []string
	}{
		{name: "required empty", value: "", rule: Rule{Required: true}, want: []string{MsgRequired}},
		{name: "required blank", value: "   ", rule: Rule{Required: true}, want: []string{MsgRequired}},
		{name: "required custom message", value: "", rule: Rule{Required: true, Message: "falta"}, want: []string{"falta"}},
		{name: "optional empty skips checks", value: "", rule: Rule{MinLength: 3, Pattern: digits}},
		{name: "min length", value: "ab", rule: Rule{MinLength: 3}, want: []string{"Debe tener al menos 3 caracteres"}},
		{name: "min length counts runes", value: "ñañ", rule: Rule{MinLength: 3}},
		{name: "max length", value: "abcd", rule: Rule{MaxLength: 3}, want: []string{"No debe exceder 3 caracteres"}},
		{name: "pattern", value: "12a", rule: Rule{Pattern: digits}, want: []string{MsgFormat}},
		{name: "custom", value: "x", rule: Rule{Custom: func(string) bool { return false }}, want: []string{MsgInvalid}},
		{
			name:  "multiple failures",
			value: "abcd",
			rule:  Rule{MaxLength: 3, Pattern: digits},
			want:  []string{"No debe exceder 3 caracteres", MsgFormat},
		},
		{name: "valid", value: "123", rule: Rule{Required: true, MinLength: 1, MaxLength: 5, Pattern: digits}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Field(tt.value, tt.rule)
			if got.Valid != (len(tt.want) == 0) {
				t.Fatalf("Valid = %v, errors %v", got.Valid, got.Errors)
			}
			if !reflect.DeepEqual(got.Errors, tt.want) {
				t.Fatalf("Errors = %v, want %v", got.Errors, tt.want)
			}
		})
	}
}

func TestEmail(t *testing.T) {
	tests := map[string]bool{
		"contacto@devint.cl":  true,
		"a.b+c@sub.devint.cl": true,
		"":                    false,
		"sin-arroba.cl":       false,
		"a@b":                 false,
		"a b@devint.cl":       false,
		"a@@devint.cl":        false,
	}
	for in, want := range tests {
		got := Email(in)
		if got.Valid != want {
			t.Errorf("Email(%q).Valid = %v, want %v", in, got.Valid, want)
		}
		if !want && (len(got.Errors) != 1 || got.Errors[0] != MsgEmail) {
			t.Errorf("Email(%q).Errors = %v", in, got.Errors)
		}
	}
}

func TestPhone(t *testing.T) {
	tests := map[string]bool{
		"":                true,
		"+56 9 1234 5678": true,
		"+56-9-1234-5678": true,
		"912345678":       true,
		"22345678":        true,
		"+56 1 2345 6789": false,
		"12345":           false,
		"+1 555 123 4567": false,
		"9123 45678 9":    false,
	}
	for in, want := range tests {
		if got := Phone(in); got.Valid != want {
			t.Errorf("Phone(%q).Valid = %v, want %v (%v)", in, got.Valid, want, got.Errors)
		}
	}
}

func TestRUT(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "12.345.678-5"},
		{in: "12345678-5"},
		{in: "11.111.111-1"},
		{in: "10.000.004-0"},
		{in: "10.000.013-K"},
		{in: "10.000.013-k"},
		{in: "12.345.678-9", want: MsgRUTInvalid},
		{in: "10.000.013-0", want: MsgRUTInvalid},
		{in: "1234567", want: MsgRUTLength},
		{in: "1.234.567.890-1", want: MsgRUTLength},
		{in: "", want: MsgRUTLength},
		{in: "1K.345.678-5", want: MsgRUTInvalid},
	}
	for _, tt := range tests {
		got := RUT(tt.in)
		if tt.want == "" {
			if !got.Valid {
				t.Errorf("RUT(%q) invalid: %v", tt.in, got.Errors)
			}
			continue
		}
		if got.Valid || len(got.Errors) != 1 || got.Errors[0] != tt.want {
			t.Errorf("RUT(%q) = %+v, want error %q", tt.in, got, tt.want)
		}
	}
}

func TestCleanRUT(t *testing.T) {
	if got := CleanRUT(" 10.000.013-k "); got != "10000013K" {
		t.Fatalf("CleanRUT = %q", got)
	}
}

func TestFormHelpers(t *testing.T) {
	rules := map[string]Rule{
		"nombre":  {Required: true, MaxLength: 5},
		"empresa": {MaxLength: 3},
	}
	results := Form(map[string]string{"nombre": "Ana"}, rules)
	if HasErrors(results) {
		t.Fatalf("unexpected errors: %v", results)
	}

	results = Form(map[string]string{"empresa": "Devint"}, rules)
	if !HasErrors(results) {
		t.Fatal("expected errors")
	}
	errs := Errors(results)
	want := map[string][]string{
		"nombre":  {MsgRequired},
		"empresa": {"No debe exceder 3 caracteres"},
	}
	if !reflect.DeepEqual(errs, want) {
		t.Fatalf("Errors = %v, want %v", errs, want)
	}
}

func TestSanitize(t *testing.T) {
	tests := map[string]string{
		"  José Núñez  ":            "José Núñez",
		"<script>alert(1)</script>": "scriptalert1script",
		"ana@devint.cl":             "ana@devint.cl",
		"Devint SpA; DROP TABLE":    "Devint SpA DROP TABLE",
		"María-José_2":              "María-José_2",
	}
	for in, want := range tests {
		if got := Sanitize(in); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeText(t *testing.T) {
	in := "  Hola, ¿cómo están?\n<b>Necesito</b> una cotización.\x00\x07 "
	want := "Hola, ¿cómo están?\nbNecesito/b una cotización."
	if got := SanitizeText(in); got != want {
		t.Fatalf("SanitizeText = %q, want %q", got, want)
	}
}
