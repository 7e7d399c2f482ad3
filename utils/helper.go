package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
)

// CountryCode is the default region used when parsing national numbers.
var CountryCode = "BR"

// CountryDialPrefix is prepended to numbers that do not already carry it.
const CountryDialPrefix = "55"

// MinDialableDigits is the shortest sanitised phone accepted for dispatch.
const MinDialableDigits = 8

func ValidatePhoneNumber(phoneNumber, countryCode string) error {
	p, err := libphonenumber.Parse(phoneNumber, countryCode)
	if err != nil {
		return err // Phone number is invalid
	}

	if !libphonenumber.IsValidNumber(p) {
		return fmt.Errorf("phone number is not valid")
	}

	return nil
}

// SanitizePhone keeps only the decimal digits of s.
func SanitizePhone(s string) string {
	return DigitsOnly(s)
}

func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// WithCountryPrefix returns the sanitised number with the country dial
// prefix added when missing. Empty input stays empty.
func WithCountryPrefix(phone string) string {
	digits := SanitizePhone(phone)
	if digits == "" || strings.HasPrefix(digits, CountryDialPrefix) {
		return digits
	}
	return CountryDialPrefix + digits
}

func IsDialable(phone string) bool {
	return len(SanitizePhone(phone)) >= MinDialableDigits
}

// ParseDecimal accepts both "1234.56" and the pt-BR "1.234,56" forms, with an
// optional "R$" prefix.
func ParseDecimal(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	value = strings.TrimSpace(strings.TrimPrefix(value, "R$"))
	if value == "" {
		return decimal.Zero, errors.New("empty decimal string")
	}
	if strings.Contains(value, ",") {
		value = strings.ReplaceAll(value, ".", "")
		value = strings.Replace(value, ",", ".", 1)
	}
	dec, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, err
	}
	return dec, nil
}

// FormatBRL renders d with two decimals, "." thousands and "," decimal mark.
func FormatBRL(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := b.String() + "," + frac
	if neg {
		return "-" + out
	}
	return out
}

func ProcessValidationErrors(err error) map[string]string {
	errorResponse := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errorResponse["_"] = err.Error()
		return errorResponse
	}
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}

// ContainsFold reports whether substr is within s, ignoring case.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// FillPlaceholders replaces every "{key}" in tpl with values[key]. Unknown
// placeholders are left untouched.
func FillPlaceholders(tpl string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
