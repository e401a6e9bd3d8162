package validate

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func validRegisterForm() RegisterForm {
	return RegisterForm{
		Name:        "Ana",
		LastName:    "Pérez",
		Mailbox:     "  Ana.Perez ",
		Password:    "secreto",
		Confirm:     "secreto",
		AcceptTerms: true,
	}
}

func TestRegisterForm_Email(t *testing.T) {
	form := validRegisterForm()
	if got := form.Email("devschool.com"); got != "ana.perez@devschool.com" {
		t.Errorf("Email() = %q, want ana.perez@devschool.com", got)
	}
}

func TestValidator_Register(t *testing.T) {
	v := New("en")

	tests := []struct {
		name    string
		mutate  func(f *RegisterForm)
		field   string
		wantErr bool
	}{
		{"valid", func(f *RegisterForm) {}, "", false},
		{"missing name", func(f *RegisterForm) { f.Name = "" }, "nombre", true},
		{"mailbox with at", func(f *RegisterForm) { f.Mailbox = "ana@gmail.com" }, "correo", true},
		{"short password", func(f *RegisterForm) { f.Password = "12345"; f.Confirm = "12345" }, "password", true},
		{"confirm mismatch", func(f *RegisterForm) { f.Confirm = "otro123" }, "confirmarPassword", true},
		{"terms not accepted", func(f *RegisterForm) { f.AcceptTerms = false }, "aceptaTerminos", true},
		{"last name optional", func(f *RegisterForm) { f.LastName = "" }, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := validRegisterForm()
			tt.mutate(&form)

			err := v.Register(form)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Register() error: %v", err)
				}
				return
			}
			var ve ValidationErrors
			if !errors.As(err, &ve) {
				t.Fatalf("Register() error = %v, want ValidationErrors", err)
			}
			if _, ok := ve[tt.field]; !ok {
				t.Errorf("ValidationErrors = %v, want field %q", ve, tt.field)
			}
		})
	}
}

func TestValidator_CustomMessages(t *testing.T) {
	v := New("en")
	form := validRegisterForm()
	form.Mailbox = "a@b"
	form.AcceptTerms = false

	err := v.Register(form)
	ve, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("Register() error = %T, want ValidationErrors", err)
	}
	if !strings.Contains(ve["correo"], "must not contain @") {
		t.Errorf("correo message = %q", ve["correo"])
	}
	if ve["aceptaTerminos"] != "terms and conditions must be accepted" {
		t.Errorf("aceptaTerminos message = %q", ve["aceptaTerminos"])
	}
}

func TestValidator_ChineseDefault(t *testing.T) {
	v := New("")
	err := v.Login(LoginForm{})
	ve, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("Login() error = %T, want ValidationErrors", err)
	}
	if len(ve) != 2 {
		t.Errorf("ValidationErrors len = %d, want 2: %v", len(ve), ve)
	}
	if ve["correo"] == "" || ve["password"] == "" {
		t.Errorf("missing translated messages: %v", ve)
	}
}

func TestIsValidationError(t *testing.T) {
	wrapped := fmt.Errorf("login: %w", ValidationErrors{"correo": "x"})
	if !IsValidationError(wrapped) {
		t.Error("IsValidationError() = false for wrapped ValidationErrors")
	}
	if IsValidationError(errors.New("other")) {
		t.Error("IsValidationError() = true for plain error")
	}
}
