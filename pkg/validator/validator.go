package validator

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"
)

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

// MaxContentLength caps a single chat message, in runes.
const MaxContentLength = 4000

func ValidateRegister(email, name, password string) ValidationErrors {
	errs := make(ValidationErrors)

	validateEmail(email, errs)

	name = strings.TrimSpace(name)
	if name == "" {
		errs.Add("name", "Name is required")
	} else if utf8.RuneCountInString(name) < 2 {
		errs.Add("name", "Name must be at least 2 characters")
	} else if utf8.RuneCountInString(name) > 100 {
		errs.Add("name", "Name is too long")
	}

	validatePassword(password, errs)

	return errs
}

func ValidateLogin(email, password string) ValidationErrors {
	errs := make(ValidationErrors)

	validateEmail(email, errs)

	if password == "" {
		errs.Add("password", "Password is required")
	}

	return errs
}

// ValidateContent only checks length; blank content is a domain error
// reported by the services.
func ValidateContent(content string) ValidationErrors {
	errs := make(ValidationErrors)
	if utf8.RuneCountInString(content) > MaxContentLength {
		errs.Add("content", fmt.Sprintf("Message must be at most %d characters", MaxContentLength))
	}
	return errs
}

func validateEmail(email string, errs ValidationErrors) {
	email = strings.TrimSpace(email)
	if email == "" {
		errs.Add("email", "Email is required")
	} else if _, err := mail.ParseAddress(email); err != nil {
		errs.Add("email", "Invalid email address")
	}
}

func validatePassword(password string, errs ValidationErrors) {
	if len(password) < 8 {
		errs.Add("password", "Password must be at least 8 characters")
		return
	}

	var hasUpper, hasLower, hasDigit bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasDigit = true
		}
	}

	missing := []string{}
	if !hasUpper {
		missing = append(missing, "one uppercase letter")
	}
	if !hasLower {
		missing = append(missing, "one lowercase letter")
	}
	if !hasDigit {
		missing = append(missing, "one number")
	}

	if len(missing) > 0 {
		errs.Add("password", fmt.Sprintf("Password must contain at least %s", strings.Join(missing, ", ")))
	}
}
