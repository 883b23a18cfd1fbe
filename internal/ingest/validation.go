package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lensai/lensai/internal/model"
)

// ErrInvalidEvent is matched by every *ValidationError.
var ErrInvalidEvent = errors.New("invalid event format")

// FieldError describes one rejected field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationError carries the per-field reasons an event was rejected.
type ValidationError struct {
	Details []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		msgs = append(msgs, d.Message)
	}
	return "invalid event format: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidEvent
}

// eventRequest is the wire form. Pointers distinguish a missing field from a zero value.
type eventRequest struct {
	Timestamp *string        `json:"ts" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	ProjectID *string        `json:"project_id" validate:"required,min=1,max=128,pathsafe"`
	RequestID *string        `json:"request_id" validate:"required,min=1,max=256"`
	UserID    *string        `json:"user_id" validate:"omitempty,max=256"`
	Route     *string        `json:"route" validate:"required,max=512"`
	Provider  *string        `json:"provider" validate:"required,min=1,max=64"`
	Model     *string        `json:"model" validate:"required,min=1,max=128"`
	TokensIn  *int64         `json:"tokens_in" validate:"required,gte=0"`
	TokensOut *int64         `json:"tokens_out" validate:"required,gte=0"`
	CostUSD   *float64       `json:"cost_usd" validate:"required,gte=0"`
	LatencyMS *float64       `json:"latency_ms" validate:"required,gte=0"`
	Status    *string        `json:"status" validate:"required,min=1,max=64"`
	Metadata  map[string]any `json:"metadata"`
}

// pathSafeRe matches values that can be embedded in a partition path.
var pathSafeRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Validator decodes and validates usage events.
type Validator struct {
	v *validator.Validate
}

// NewValidator returns a Validator reporting fields by their JSON names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("pathsafe", func(fl validator.FieldLevel) bool {
		return pathSafeRe.MatchString(fl.Field().String())
	})
	return &Validator{v: v}
}

// Decode parses body into a UsageEvent. Failures are *ValidationError.
func (val *Validator) Decode(body []byte) (*model.UsageEvent, error) {
	var req eventRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &ValidationError{Details: []FieldError{decodeFieldError(err)}}
	}

	if err := val.v.Struct(&req); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return nil, fmt.Errorf("validate event: %w", err)
		}
		details := make([]FieldError, 0, len(ve))
		for _, fe := range ve {
			details = append(details, FieldError{Field: fe.Field(), Message: fieldError(fe)})
		}
		return nil, &ValidationError{Details: details}
	}

	ts, err := time.Parse(time.RFC3339Nano, *req.Timestamp)
	if err != nil {
		return nil, &ValidationError{Details: []FieldError{{Field: "ts", Message: "ts must be an RFC 3339 timestamp"}}}
	}

	event := &model.UsageEvent{
		Timestamp: ts.UTC(),
		ProjectID: *req.ProjectID,
		RequestID: *req.RequestID,
		Route:     *req.Route,
		Provider:  *req.Provider,
		Model:     *req.Model,
		TokensIn:  *req.TokensIn,
		TokensOut: *req.TokensOut,
		CostUSD:   *req.CostUSD,
		LatencyMS: *req.LatencyMS,
		Status:    *req.Status,
		Metadata:  req.Metadata,
	}
	if req.UserID != nil {
		event.UserID = *req.UserID
	}
	return event, nil
}

func decodeFieldError(err error) FieldError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return FieldError{
			Field:   typeErr.Field,
			Message: fmt.Sprintf("%s must be of type %s", typeErr.Field, typeErr.Type.String()),
		}
	}
	return FieldError{Message: "body must be a JSON object: " + err.Error()}
}

// fieldError converts a single FieldError into a readable message.
func fieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "datetime":
		return field + " must be an RFC 3339 timestamp"
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "pathsafe":
		return field + " may only contain letters, digits, '-' and '_'"
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}
