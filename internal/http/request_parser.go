package http

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"bunchee/internal/auth"
	"bunchee/internal/core"
	"bunchee/internal/ledger"
)

var errBadDate = errors.New("invalid date or time")

// EntryForm holds the fields of the add and edit forms.
type EntryForm struct {
	Kind       core.Kind
	Category   string
	CustomName string
	Amount     string
	Notes      string
	Date       string // YYYY-MM-DD, edit form only
	Time       string // HH:MM, edit form only
}

// ParseEntryForm extracts entry fields from a parsed form.
func ParseEntryForm(form url.Values) EntryForm {
	return EntryForm{
		Kind:       core.ParseKind(form.Get("kind")),
		Category:   sanitizeInput(form.Get("category")),
		CustomName: sanitizeInput(form.Get("custom_name")),
		Amount:     strings.TrimSpace(form.Get("amount")),
		Notes:      sanitizeInput(form.Get("notes")),
		Date:       strings.TrimSpace(form.Get("entry_date")),
		Time:       strings.TrimSpace(form.Get("entry_time")),
	}
}

// Entry converts the form to an entry. The creation time is left zero when
// the form carries no date; a date without a time means midnight in loc.
func (f EntryForm) Entry(loc *time.Location) (core.Entry, error) {
	cents, err := core.ParseDecimalToCents(f.Amount)
	if err != nil {
		return core.Entry{}, err
	}
	e := core.Entry{
		Kind:       f.Kind,
		Category:   f.Category,
		CustomName: f.CustomName,
		Amount:     core.Money{Cents: cents},
		Notes:      f.Notes,
	}
	if f.Date != "" {
		clock := f.Time
		if clock == "" {
			clock = "00:00"
		}
		t, err := time.ParseInLocation("2006-01-02 15:04", f.Date+" "+clock, loc)
		if err != nil {
			return core.Entry{}, errBadDate
		}
		e.CreatedAt = t
	}
	if strings.TrimSpace(e.Category) == "" && strings.TrimSpace(e.CustomName) == "" {
		return core.Entry{}, core.ErrMissingName
	}
	return e, nil
}

// Flash texts shown after form posts.
const (
	msgSaved            = "บันทึกรายการเรียบร้อย"
	msgUpdated          = "แก้ไขเรียบร้อย"
	msgDeleted          = "ลบเรียบร้อย"
	msgDeletedAll       = "ลบรายการทั้งหมดเรียบร้อย"
	msgImported         = "นำเข้า %d รายการ"
	msgImportSkipped    = "นำเข้า %d รายการ (ข้าม %d แถว)"
	msgNoFile           = "โปรดเลือกไฟล์"
	msgBadCSV           = "ไฟล์ CSV ไม่ถูกต้อง"
	msgExportFailed     = "เกิดข้อผิดพลาดขณะส่งออก CSV"
	msgNoEditRight      = "ไม่มีสิทธิ์แก้ไข"
	msgNoDeleteRight    = "ไม่มีสิทธิ์ลบ"
	msgBadLogin         = "ชื่อผู้ใช้หรือรหัสผ่านไม่ถูกต้อง"
	msgNeedCredentials  = "กรุณากรอกชื่อผู้ใช้และรหัสผ่าน"
	msgUserExists       = "ชื่อผู้ใช้นี้มีอยู่แล้ว"
	msgRegistered       = "สมัครสมาชิกเรียบร้อย กรุณาเข้าสู่ระบบ"
	msgNeedAdmin        = "ต้องเป็นผู้ดูแลระบบ"
	msgUserCreated      = "สร้างสมาชิกเรียบร้อย"
	msgUserDeleted      = "ลบสมาชิกเรียบร้อย"
	msgAdminToggled     = "ปรับสิทธิ์เรียบร้อย"
	msgPasswordReset    = "รีเซ็ตรหัสผ่านเรียบร้อย"
	msgNeedNewPassword  = "กรุณากรอกรหัสผ่านใหม่"
	msgProtectedDelete  = "ไม่สามารถลบ admin หลักได้"
	msgProtectedToggle  = "ไม่สามารถเปลี่ยนสิทธิ์ admin หลักได้"
	msgProtectedReset   = "ไม่สามารถรีเซ็ตรหัสผ่าน admin หลักได้"
	msgNeedPasswords    = "กรุณากรอกรหัสผ่านปัจจุบันและรหัสผ่านใหม่"
	msgWrongPassword    = "รหัสผ่านปัจจุบันไม่ถูกต้อง"
	msgPasswordChanged  = "เปลี่ยนรหัสผ่านเรียบร้อย"
	msgNotFound         = "ไม่พบรายการ"
	msgSaveFailed       = "บันทึกไม่สำเร็จ กรุณาลองใหม่"
	msgInvalidUsername  = "ชื่อผู้ใช้ไม่ถูกต้อง"
	msgInvalidAmount    = "จำนวนเงินไม่ถูกต้อง"
	msgMissingName      = "กรุณาเลือกหรือพิมพ์ชื่อรายการ"
	msgBadDateTime      = "รูปแบบวันที่หรือเวลาไม่ถูกต้อง"
	msgNameTooLong      = "ชื่อรายการยาวเกินไป"
	msgNotesTooLong     = "หมายเหตุยาวเกินไป"
	msgInvalidEntryData = "ข้อมูลรายการไม่ถูกต้อง"
)

// entryErrorMessage maps validation failures to a user message.
func entryErrorMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidAmount):
		return msgInvalidAmount
	case errors.Is(err, core.ErrMissingName):
		return msgMissingName
	case errors.Is(err, errBadDate):
		return msgBadDateTime
	case errors.Is(err, core.ErrNameTooLong):
		return msgNameTooLong
	case errors.Is(err, core.ErrNotesTooLong):
		return msgNotesTooLong
	default:
		return msgInvalidEntryData
	}
}

// isValidationError reports whether err is the caller's fault.
func isValidationError(err error) bool {
	for _, target := range []error{
		core.ErrInvalidAmount, core.ErrInvalidKind, core.ErrMissingName,
		core.ErrNameTooLong, core.ErrNotesTooLong, core.ErrMissingDate,
		core.ErrEmptyUsername, core.ErrUsernameTooLong, errBadDate,
		auth.ErrEmptyPassword, ledger.ErrDuplicateUsername,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
