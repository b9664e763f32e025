package response

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Response is the envelope shared by every endpoint.
type Response struct {
	Status  bool   `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func OK(message string) Response {
	return Response{
		Status:  true,
		Message: message,
	}
}

func OKWithData(message string, data any) Response {
	return Response{
		Status:  true,
		Message: message,
		Data:    data,
	}
}

func Error(msg string) Response {
	return Response{
		Status:  false,
		Message: msg,
	}
}

func ErrorWithData(msg string, data any) Response {
	return Response{
		Status:  false,
		Message: msg,
		Data:    data,
	}
}

func ValidationError(errs validator.ValidationErrors) Response {
	var errMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "email":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is not a valid email", err.Field()))
		default:
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is not valid", err.Field()))
		}
	}

	return Response{
		Status:  false,
		Message: strings.Join(errMsgs, ", "),
	}
}
