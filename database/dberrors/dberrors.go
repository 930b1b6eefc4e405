package dberrors

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var duplicateMarkers = []string{
	"duplicate key value violates unique constraint", // postgres
	"sqlstate 23505",
	"unique constraint failed", // sqlite
}

// IsDuplicateKey reports whether err, or anything it wraps, is a unique
// constraint violation. Translated gorm errors are matched first; raw driver
// messages are matched as a fallback for sessions without TranslateError.
func IsDuplicateKey(err error) bool {
	for err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return true
		}

		msg := strings.ToLower(err.Error())
		for _, marker := range duplicateMarkers {
			if strings.Contains(msg, marker) {
				return true
			}
		}

		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}

	return false
}

// IsNotFound reports whether err wraps gorm.ErrRecordNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
