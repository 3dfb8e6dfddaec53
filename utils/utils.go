// Package utils provides utility functions for the application.
package utils

import "regexp"

func ToPtr[T any](v T) *T {
	return &v
}

func IsTrue(b *bool) bool {
	return b != nil && *b
}

// e164Pattern matches a full international phone number: a leading plus,
// a non-zero first digit, and at most 15 digits total.
var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// IsValidE164 reports whether phone is a well-formed E.164 number.
func IsValidE164(phone string) bool {
	return e164Pattern.MatchString(phone)
}
