package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrValidation is wrapped by every validation failure in this package.
var ErrValidation = errors.New("validation failed")

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// FieldError names the offending field of a failed validation.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error { return ErrValidation }

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &FieldError{Field: field, Message: "is required"}
	}
	return nil
}

// ValidateMusic checks the id and title of an entry form.
func ValidateMusic(externalID, title string) error {
	return errors.Join(required("music_id", externalID), required("title", title))
}

// Validate checks a create request.
func (in MusicInput) Validate() error {
	return ValidateMusic(in.ExternalID, in.Title)
}

// Validate checks an edited entry. The common id must already be known.
func (v MergedMusicView) Validate() error {
	return errors.Join(
		required("music_common_id", v.CommonID),
		ValidateMusic(v.ExternalID, v.Title),
	)
}

// Validate checks a bulk import row.
func (i BulkImportItem) Validate() error {
	return ValidateMusic(i.ExternalID, i.Title)
}

// ValidateCount checks the number of entries requested for auto-registration.
func ValidateCount(count int) error {
	if count < 1 {
		return &FieldError{Field: "count", Message: "must be at least 1"}
	}
	return nil
}

// ValidateEmail applies the basic address shape check used by the registration form.
func ValidateEmail(email string) error {
	if err := required("email", email); err != nil {
		return err
	}
	if !emailPattern.MatchString(email) {
		return &FieldError{Field: "email", Message: "is not a valid address"}
	}
	return nil
}

// Validate checks a registration request before it is submitted.
func (r RegisterRequest) Validate() error {
	errs := []error{
		ValidateEmail(r.Email),
		required("password", r.Password),
		required("title", r.Title),
	}
	if len(r.IDList) == 0 {
		errs = append(errs, &FieldError{Field: "id_list", Message: "must not be empty"})
	}
	return errors.Join(errs...)
}
