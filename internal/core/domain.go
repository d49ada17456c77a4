package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

// OtherLabel is used for entries that carry neither a category nor a custom name.
const OtherLabel = "อื่นๆ"

type (
	// Kind tells whether an entry adds to or subtracts from the balance.
	Kind string

	Money struct {
		Cents int64
	}

	Entry struct {
		ID         int64
		UserID     int64
		Kind       Kind
		Category   string // one of the lookup categories, optional
		CustomName string // free text name, optional
		Amount     Money
		Notes      string
		CreatedAt  time.Time
	}

	User struct {
		ID           int64
		Username     string
		PasswordHash string
		IsAdmin      bool
	}
)

// Predefined lookup lists offered by the entry form.
var (
	IncomeCategories = []string{
		"ถ่ายเอกสาร A4 ขาวดำ", "ถ่ายเอกสาร A4 สี", "print A4 ขาวดำ", "print A4 สี",
		"เคลือบบัตร ขนาดการ์ดทั่วไป", "เคลือบบัตรขนาด A4", "ถ่ายเอกสาร A3 สี",
		"ถ่ายเอกสาร A3 ขาวดำ", "print A3 ขาวดำ", "print A3", OtherLabel,
	}

	ExpenseCategories = []string{"ค่าหมึก", "ค่ากระดาษ", "ค่าน้ำ", "ค่าไฟ", OtherLabel}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidKind     = errors.New("invalid kind")
	ErrMissingName     = errors.New("category or custom name required")
	ErrNameTooLong     = errors.New("name too long (max 200 characters)")
	ErrNotesTooLong    = errors.New("notes too long (max 300 characters)")
	ErrMissingDate     = errors.New("created_at cannot be zero")
	ErrEmptyUsername   = errors.New("empty username")
	ErrUsernameTooLong = errors.New("username too long (max 80 characters)")
)

// ParseKind maps a form or query value to a Kind. Anything other than
// "income" is an expense, matching how the chart filter treats unknown values.
func ParseKind(s string) Kind {
	if strings.EqualFold(strings.TrimSpace(s), string(Income)) {
		return Income
	}
	return Expense
}

func (k Kind) Validate() error {
	switch k {
	case Income, Expense:
		return nil
	default:
		return ErrInvalidKind
	}
}

func (k Kind) IsIncome() bool {
	return k == Income
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Label is the name the entry is grouped under in charts.
func (e Entry) Label() string {
	if e.Category != "" {
		return e.Category
	}
	if e.CustomName != "" {
		return e.CustomName
	}
	return OtherLabel
}

// Signed returns the amount with expenses negated.
func (e Entry) Signed() int64 {
	if e.Kind.IsIncome() {
		return e.Amount.Cents
	}
	return -e.Amount.Cents
}

func (e Entry) Validate() error {
	if err := e.Kind.Validate(); err != nil {
		return err
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" && strings.TrimSpace(e.CustomName) == "" {
		return ErrMissingName
	}
	if utf8.RuneCountInString(e.Category) > 200 || utf8.RuneCountInString(e.CustomName) > 200 {
		return ErrNameTooLong
	}
	if utf8.RuneCountInString(e.Notes) > 300 {
		return ErrNotesTooLong
	}
	if e.CreatedAt.IsZero() {
		return ErrMissingDate
	}
	return nil
}

func (u User) Validate() error {
	name := strings.TrimSpace(u.Username)
	if name == "" {
		return ErrEmptyUsername
	}
	if utf8.RuneCountInString(name) > 80 {
		return ErrUsernameTooLong
	}
	return nil
}
