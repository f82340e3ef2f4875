// Package httpx provides HTTP response utilities around the envelope contract
// shared with API clients: {success, message, data, errors?}.
package httpx

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Envelope is the stable response shape for every JSON endpoint.
type Envelope struct {
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	Data    any                   `json:"data"`
	Errors  map[string]FieldError `json:"errors,omitempty"`
}

// FieldError carries a per-field validation failure.
type FieldError struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// JSON sends an envelope with the given status code.
func JSON(w http.ResponseWriter, status int, message string, data any) {
	write(w, status, Envelope{Success: status < http.StatusBadRequest, Message: message, Data: data})
}

// Fail sends a failure envelope without field errors.
func Fail(w http.ResponseWriter, status int, message string) {
	write(w, status, Envelope{Success: false, Message: message})
}

// FailFields sends a 422 envelope carrying per-field validation errors.
func FailFields(w http.ResponseWriter, message string, fields map[string]FieldError) {
	write(w, http.StatusUnprocessableEntity, Envelope{Success: false, Message: message, Errors: fields})
}

// DecodeJSON decodes the JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}

func write(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

var fieldTitler = cases.Title(language.English)

// ValidationFields maps validator errors into the contract shape:
// field name -> {key: lowercased rule name, message: humanized text}.
func ValidationFields(err error) map[string]FieldError {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]FieldError{"general": {Key: "invalid", Message: "invalid request"}}
	}
	fields := make(map[string]FieldError, len(verrs))
	for _, fe := range verrs {
		name := strings.ToLower(fe.Field())
		fields[name] = FieldError{
			Key:     strings.ToLower(fe.Tag()),
			Message: validationMessage(fe),
		}
	}
	return fields
}

func validationMessage(fe validator.FieldError) string {
	label := fieldTitler.String(strings.ToLower(fe.Field()))
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return label + " must be a valid email address"
	case "min":
		return label + " must be at least " + fe.Param() + " characters"
	case "max":
		return label + " may not be longer than " + fe.Param() + " characters"
	default:
		return label + " is invalid"
	}
}
