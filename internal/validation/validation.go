// Package validation は認証フォームの入力検証を提供する。
package validation

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hitoshi/planner/internal/model"
	"github.com/hitoshi/planner/internal/security"
)

const (
	MaxEmailLength    = 254
	MinPasswordLength = 8
	// MaxPasswordLength はbcryptが扱える72バイトに合わせる。
	MaxPasswordLength = 72
	MaxNameLength     = 100
)

// SignupInput はサインアップフォームの入力。
type SignupInput struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Name            string `json:"name"`
}

// ForgotPasswordInput はパスワード再設定メール送信フォームの入力。
type ForgotPasswordInput struct {
	Email string `json:"email"`
}

// ResetPasswordInput はパスワード再設定フォームの入力。
// AccessTokenは再設定メールのリンクで発行されたリカバリー用トークン。
type ResetPasswordInput struct {
	AccessToken     string `json:"access_token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validator は入力を検証し、正規化済みの値を返す。
type Validator struct {
	sanitizer *security.TextSanitizer
}

// NewValidator はValidatorを生成する。
func NewValidator(sanitizer *security.TextSanitizer) *Validator {
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	return &Validator{sanitizer: sanitizer}
}

// Signup はサインアップ入力を検証する。
// メールアドレスは小文字化し、表示名はHTMLを除去する。
func (v *Validator) Signup(in SignupInput) model.ValidationResult[SignupInput] {
	var errs []model.ValidationErrorCode

	email, emailErrs := normalizeEmail(in.Email)
	errs = append(errs, emailErrs...)
	errs = append(errs, checkPassword(in.Password, in.ConfirmPassword)...)

	name := v.sanitizer.Sanitize(in.Name)
	if utf8.RuneCountInString(name) > MaxNameLength {
		errs = append(errs, model.ValidationNameTooLong)
	}

	return result(errs, SignupInput{
		Email:           email,
		Password:        in.Password,
		ConfirmPassword: in.ConfirmPassword,
		Name:            name,
	})
}

// ForgotPassword はパスワード再設定メール送信の入力を検証する。
func (v *Validator) ForgotPassword(in ForgotPasswordInput) model.ValidationResult[ForgotPasswordInput] {
	email, errs := normalizeEmail(in.Email)
	return result(errs, ForgotPasswordInput{Email: email})
}

// ResetPassword はパスワード再設定の入力を検証する。
func (v *Validator) ResetPassword(in ResetPasswordInput) model.ValidationResult[ResetPasswordInput] {
	var errs []model.ValidationErrorCode

	token := strings.TrimSpace(in.AccessToken)
	if token == "" {
		errs = append(errs, model.ValidationTokenRequired)
	}
	errs = append(errs, checkPassword(in.Password, in.ConfirmPassword)...)

	return result(errs, ResetPasswordInput{
		AccessToken:     token,
		Password:        in.Password,
		ConfirmPassword: in.ConfirmPassword,
	})
}

func result[T any](errs []model.ValidationErrorCode, sanitized T) model.ValidationResult[T] {
	if len(errs) > 0 {
		return model.ValidationResult[T]{IsValid: false, Errors: errs}
	}
	return model.ValidationResult[T]{IsValid: true, Sanitized: &sanitized}
}

func normalizeEmail(raw string) (string, []model.ValidationErrorCode) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", []model.ValidationErrorCode{model.ValidationEmailRequired}
	}
	if len(email) > MaxEmailLength {
		return "", []model.ValidationErrorCode{model.ValidationEmailInvalid}
	}

	// 表示名付き（"Name <a@b>"）は受け付けない
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return "", []model.ValidationErrorCode{model.ValidationEmailInvalid}
	}
	return email, nil
}

func checkPassword(password, confirm string) []model.ValidationErrorCode {
	if password == "" {
		return []model.ValidationErrorCode{model.ValidationPasswordRequired}
	}

	var errs []model.ValidationErrorCode
	switch {
	case utf8.RuneCountInString(password) < MinPasswordLength:
		errs = append(errs, model.ValidationPasswordTooShort)
	case len(password) > MaxPasswordLength:
		errs = append(errs, model.ValidationPasswordTooLong)
	case !hasLetterAndDigit(password):
		errs = append(errs, model.ValidationPasswordWeak)
	}
	if password != confirm {
		errs = append(errs, model.ValidationPasswordMismatch)
	}
	return errs
}

func hasLetterAndDigit(s string) bool {
	var letter, digit bool
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return letter && digit
}
