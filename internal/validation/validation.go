// Package validation содержит функции валидации входных данных.
package validation

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxTitleLength = 200
	minLoginLength = 3
	maxLoginLength = 64
	maxComment     = 2000
)

// IsValidRating проверяет, что оценка отзыва в диапазоне 1..5.
func IsValidRating(rating int) bool {
	return rating >= 1 && rating <= 5
}

// IsValidTitle проверяет название лота: непустое после обрезки пробелов,
// не длиннее maxTitleLength символов и без управляющих символов.
func IsValidTitle(title string) bool {
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > maxTitleLength {
		return false
	}
	for _, r := range title {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// IsValidComment ограничивает длину комментария к отзыву.
func IsValidComment(comment string) bool {
	return utf8.RuneCountInString(comment) <= maxComment
}

// IsValidBatchID проверяет, что идентификатор корзины является UUID.
func IsValidBatchID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// IsValidLogin допускает латиницу, цифры, '_', '.' и '-'.
func IsValidLogin(login string) bool {
	if len(login) < minLoginLength || len(login) > maxLoginLength {
		return false
	}
	for _, r := range login {
		if r > unicode.MaxASCII {
			return false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '.' && r != '-' {
			return false
		}
	}
	return true
}
