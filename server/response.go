package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/teranos/entres/errors"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return errors.Wrap(err, "failed to encode JSON")
	}
	return nil
}

// writeRaw writes an already encoded JSON body
func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// errorBody is the shape of every error the server writes outside a job result
type errorBody struct {
	Error  errorDetail `json:"error"`
	Status int         `json:"status"`
}

type errorDetail struct {
	By         string `json:"by"`
	Type       string `json:"type"`
	Reason     string `json:"reason"`
	StackTrace string `json:"stack_trace,omitempty"`
}

func failureBody(status int, err error, trace bool) errorBody {
	t := errors.Classify(err)
	by := "entres"
	if t == errors.TypeBackend || t == errors.TypeTimeout {
		by = "backend"
	}
	body := errorBody{
		Error:  errorDetail{By: by, Type: string(t), Reason: err.Error()},
		Status: status,
	}
	if trace {
		body.Error.StackTrace = fmt.Sprintf("%+v", err)
	}
	return body
}

// writeFailure writes err in the error document shape
func writeFailure(w http.ResponseWriter, status int, err error, trace bool) {
	_ = writeJSON(w, status, failureBody(status, err, trace))
}

// statusFor maps an error onto an HTTP status: validation 400, not found 404, others 500
func statusFor(err error) int {
	switch errors.Classify(err) {
	case "":
		return http.StatusOK
	case errors.TypeValidation:
		return http.StatusBadRequest
	case errors.TypeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
