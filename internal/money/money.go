// Package money содержит денежный тип с фиксированной точкой.
package money

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Scale задаёт количество знаков дробной части (центы, копейки).
const Scale = 2

var (
	// ErrInvalidAmount возвращается, если строку нельзя разобрать как сумму.
	ErrInvalidAmount = errors.New("invalid money amount")
	// ErrNegativeAmount возвращается при разборе отрицательной суммы.
	ErrNegativeAmount = errors.New("negative money amount")
	// ErrTooPrecise возвращается, если у суммы больше двух знаков после запятой.
	ErrTooPrecise = errors.New("money amount has sub-cent precision")
)

const (
	// MaxCents ограничивает любую сумму, принятую извне: 10^13 единиц валюты.
	// Сумма трёх таких значений не переполняет int64.
	MaxCents int64 = 1_000_000_000_000_000

	maxCentsDigits = 15
	maxInputLen    = 32
)

// Max задаёт наибольшую допустимую сумму.
var Max = Money{cents: MaxCents}

var maxCentsDecimal = decimal.NewFromInt(MaxCents)

// Money хранит неотрицательную сумму в минорных единицах валюты.
// Нулевое значение соответствует 0.00.
type Money struct {
	cents int64
}

// FromCents создаёт сумму из минорных единиц. Отрицательное значение приводит к панике.
func FromCents(cents int64) Money {
	if cents < 0 {
		panic(fmt.Sprintf("MONEY_INVARIANT_NEGATIVE: %d", cents))
	}
	return Money{cents: cents}
}

// Parse разбирает десятичную запись вида "76.50".
func Parse(s string) (Money, error) {
	if len(s) > maxInputLen {
		return Money{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidAmount, maxInputLen)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromDecimal(d)
}

// FromDecimal переводит decimal в Money без потери точности.
// Порядок проверяется до масштабирования: 1e100000000 отклоняется сразу.
func FromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsZero() {
		return Money{}, nil
	}
	if d.IsNegative() {
		return Money{}, ErrNegativeAmount
	}

	exp := int64(d.Exponent()) + Scale
	if exp > maxCentsDigits {
		return Money{}, fmt.Errorf("%w: exceeds %s", ErrInvalidAmount, Max)
	}
	if exp < 0 && -exp >= int64(len(d.Coefficient().String())) {
		return Money{}, ErrTooPrecise
	}

	shifted := d.Shift(Scale)
	if !shifted.IsInteger() {
		return Money{}, ErrTooPrecise
	}
	if shifted.Cmp(maxCentsDecimal) > 0 {
		return Money{}, fmt.Errorf("%w: exceeds %s", ErrInvalidAmount, Max)
	}
	return Money{cents: shifted.IntPart()}, nil
}

// MustParse как Parse, но паникует на ошибке. Для констант и тестов.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Cents возвращает сумму в минорных единицах.
func (m Money) Cents() int64 {
	return m.cents
}

// Decimal возвращает сумму как decimal.Decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.cents, -Scale)
}

// Add складывает суммы. При переполнении паникует.
func (m Money) Add(o Money) Money {
	if m.cents > math.MaxInt64-o.cents {
		panic(fmt.Sprintf("MONEY_INVARIANT_OVERFLOW: %d + %d", m.cents, o.cents))
	}
	return Money{cents: m.cents + o.cents}
}

// Cmp возвращает -1, 0 или 1.
func (m Money) Cmp(o Money) int {
	switch {
	case m.cents < o.cents:
		return -1
	case m.cents > o.cents:
		return 1
	default:
		return 0
	}
}

// Less сообщает, что m < o.
func (m Money) Less(o Money) bool {
	return m.cents < o.cents
}

// IsZero сообщает, что сумма равна нулю.
func (m Money) IsZero() bool {
	return m.cents == 0
}

// Min возвращает меньшую из сумм.
func Min(a, b Money) Money {
	if b.Less(a) {
		return b
	}
	return a
}

// String форматирует сумму с двумя знаками после запятой.
func (m Money) String() string {
	return m.Decimal().StringFixed(Scale)
}

// MarshalJSON кодирует сумму JSON-числом: 76.50.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON принимает как число, так и строку.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("%w: null", ErrInvalidAmount)
	}
	data = bytes.Trim(data, `"`)
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
