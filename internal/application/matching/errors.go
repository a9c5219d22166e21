package matching

import (
	"errors"
	"fmt"

	"scholar-match-api/internal/domain/entity"
)

var (
	ErrInvalidQuery        = errors.New("invalid query")
	ErrInvalidSearchType   = errors.New("invalid search type")
	ErrInvalidPage         = errors.New("invalid page")
	ErrInvalidStudentType  = errors.New("invalid student type")
	ErrInvalidProfileType  = errors.New("invalid profile type")
	ErrRoleNotAllowed      = errors.New("role not allowed")
	ErrProfileNotFound     = errors.New("profile not found")
	errEmptyInsightContent = errors.New("empty insight content")
)

// RequestError 携带面向客户端的字段与提示，Unwrap 为对应的哨兵错误
type RequestError struct {
	Kind    error
	Field   string
	Message string
}

func (e *RequestError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *RequestError) Unwrap() error { return e.Kind }

func invalid(kind error, field, format string, args ...any) error {
	return &RequestError{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}

func roleNotAllowed(t entity.SearchType) error {
	return &RequestError{
		Kind:    ErrRoleNotAllowed,
		Message: fmt.Sprintf("You must be an academician to search for %s.", t),
	}
}

func profileNotFound() error {
	return &RequestError{Kind: ErrProfileNotFound, Message: "Profile not found."}
}
