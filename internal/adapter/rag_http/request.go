package rag_http

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"programme-qa/internal/domain"
	"programme-qa/internal/usecase"

	"github.com/go-playground/validator/v10"
)

// DefaultDocuments is used when a request omits ndocs.
const DefaultDocuments = 5

// AnswerRequest is the body of POST /answer.
type AnswerRequest struct {
	Q         string          `json:"q" validate:"required,notblank"`
	NDocs     *int            `json:"ndocs" validate:"omitempty,min=1,max=20"`
	SessionID string          `json:"session_id" validate:"max=128"`
	MessageID string          `json:"message_id" validate:"max=128"`
	Seq       int             `json:"seq" validate:"min=0"`
	FAQFile   string          `json:"faq_file" validate:"omitempty,max=256,endswith=.md"`
	History   json.RawMessage `json:"history"`
}

func (r AnswerRequest) documents() int {
	if r.NDocs == nil {
		return DefaultDocuments
	}
	return *r.NDocs
}

// decodeHistory is lenient: a history that is not an array is ignored and
// entries that do not decode are dropped. Role and length rules are applied
// later by the prompt builder.
func decodeHistory(raw json.RawMessage) []domain.HistoryTurn {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	turns := make([]domain.HistoryTurn, 0, len(items))
	for _, item := range items {
		var turn domain.HistoryTurn
		if err := json.Unmarshal(item, &turn); err != nil {
			continue
		}
		turns = append(turns, turn)
	}
	return turns
}

// FeedbackRequest is the body of POST /feedback.
type FeedbackRequest struct {
	SessionID        string `json:"session_id" validate:"required,max=128"`
	MessageID        string `json:"message_id" validate:"required,max=128"`
	FeedbackType     string `json:"feedback_type" validate:"required,oneof=up down report"`
	FeedbackCategory string `json:"feedback_category" validate:"omitempty,oneof=wrong_info outdated unhelpful other"`
	Question         string `json:"question" validate:"max=4000"`
	Response         string `json:"response" validate:"max=20000"`
	FeedbackText     string `json:"feedback_text"`
}

// RequestValidator adapts validator/v10 to echo.Validator.
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return &RequestValidator{validate: v}
}

func (rv *RequestValidator) Validate(i interface{}) error {
	err := rv.validate.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", usecase.ErrInvalidRequest, err)
	}
	return NewValidationError(verrs)
}

// ValidationError maps JSON field names to caller-facing messages.
type ValidationError struct {
	Errors map[string]string `json:"errors"`
}

func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	out := make(map[string]string, len(errs))
	for _, err := range errs {
		field := err.Field()
		switch err.Tag() {
		case "required", "notblank":
			out[field] = fmt.Sprintf("%s is required", field)
		case "min":
			out[field] = fmt.Sprintf("%s must be at least %s", field, err.Param())
		case "max":
			out[field] = fmt.Sprintf("%s must be at most %s", field, err.Param())
		case "oneof":
			out[field] = fmt.Sprintf("%s must be one of: %s", field, err.Param())
		case "endswith":
			out[field] = fmt.Sprintf("%s must end with %s", field, err.Param())
		default:
			out[field] = fmt.Sprintf("%s is invalid", field)
		}
	}
	return &ValidationError{Errors: out}
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	messages := make([]string, 0, len(fields))
	for _, field := range fields {
		messages = append(messages, e.Errors[field])
	}
	return "validation failed: " + strings.Join(messages, ", ")
}

func (e *ValidationError) Unwrap() error {
	return usecase.ErrInvalidRequest
}
