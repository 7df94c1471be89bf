package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type Error struct {
	code    int
	message string
	headers map[string][]string
}

func (e *Error) Error() string {
	return fmt.Sprintf("http error %v: %v", e.code, e.message)
}

func (e *Error) Code() int       { return e.code }
func (e *Error) Message() string { return e.message }

func (e *Error) ApplyHeaders(w http.ResponseWriter) {
	if e.headers == nil {
		return
	}
	for k, vs := range e.headers {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
}

func MakeError(code int, message string) error {
	return &Error{code: code, message: message}
}

func MakeAuthError(message string, scheme string) error {
	return &Error{
		code:    http.StatusUnauthorized,
		message: message,
		headers: map[string][]string{"WWW-Authenticate": {scheme}},
	}
}

func ErrorFromResponse(rsp *http.Response) error {
	if 200 <= rsp.StatusCode && rsp.StatusCode <= 299 {
		return nil
	}
	var b strings.Builder
	_, err := io.Copy(&b, io.LimitReader(rsp.Body, 64*1024))
	return errors.Join(MakeError(rsp.StatusCode, b.String()), err)
}

type errorBody struct {
	Error string `json:"error"`
}

func WriteJSON(w http.ResponseWriter, code int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

func WriteErrorResponse(err error, w http.ResponseWriter) error {
	var (
		httpErr *Error
		code    int
		message string
	)
	if errors.As(err, &httpErr) {
		code = httpErr.code
		message = httpErr.message
	} else {
		code = http.StatusInternalServerError
		message = "internal server error"
	}
	if httpErr != nil {
		httpErr.ApplyHeaders(w)
	}
	return WriteJSON(w, code, errorBody{Error: message})
}
