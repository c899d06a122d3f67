package repository

import (
	"regexp"

	"github.com/go-playground/validator/v10"

	apperrors "jobboard-backend/internal/errors"
)

// telegramIDPattern matches Telegram usernames, with or without the
// leading @.
var telegramIDPattern = regexp.MustCompile(`^@?[A-Za-z0-9_]{5,32}$`)

// newValidator builds the validator shared by the repositories, with the
// custom telegram_id rule registered.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("telegram_id", func(fl validator.FieldLevel) bool {
		return telegramIDPattern.MatchString(fl.Field().String())
	})
	return v
}

// validationError converts validator output into a field-keyed validation
// error. Malformed input is rejected before any query executes and is
// never cached or retried.
func validationError(operation string, err error) error {
	if err == nil {
		return nil
	}
	builder := apperrors.Validation("INVALID_INPUT", "input validation failed").
		WithOperation(operation)

	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			builder.WithField(fe.Field(), fieldMessage(fe))
		}
	} else {
		builder.WithDetails(err.Error())
	}
	return builder.Build()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "telegram_id":
		return "must be a valid telegram username"
	case "min":
		return "is too short"
	case "max":
		return "is too long"
	default:
		return "is invalid"
	}
}
