package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ekaya-inc/ontology-impact/pkg/graphstore"
)

// maxBodyBytes bounds request bodies; ontology documents dominate the size.
const maxBodyBytes = 16 << 20

// RequestValidator checks decoded request bodies against their validate tags.
type RequestValidator struct {
	validate *validator.Validate
}

// NewRequestValidator creates a RequestValidator that reports fields by their
// JSON names and understands the graphiri tag.
func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("graphiri", func(fl validator.FieldLevel) bool {
		return graphstore.ValidateGraphIRI(fl.Field().String()) == nil
	})
	return &RequestValidator{validate: v}
}

// Struct validates s and returns a single readable message on failure.
func (v *RequestValidator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "graphiri":
		return fmt.Sprintf("%s must be an absolute IRI without spaces or angle brackets", field)
	case "max":
		return fmt.Sprintf("%s must have at most %s entries", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// decodeBody reads a JSON body into dst and validates it. On failure the
// error response (413 for oversized bodies, 400 otherwise) has already been
// written.
func decodeBody(w http.ResponseWriter, r *http.Request, v *RequestValidator, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			_ = ErrorResponse(w, http.StatusRequestEntityTooLarge, "request_too_large",
				fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
			return err
		}
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return err
	}
	if err := v.Struct(dst); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
		return err
	}
	return nil
}
