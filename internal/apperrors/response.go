package apperrors

import (
	stderrors "errors"
)

// ToBody converts an AppError to the flat JSON body sent to clients:
// {code, message} plus every detail key merged at the top level.
func (e *AppError) ToBody() map[string]any {
	body := map[string]any{
		"code":    e.Code,
		"message": e.Message,
	}
	for k, v := range e.Details {
		body[k] = v
	}
	return body
}

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
