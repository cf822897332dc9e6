// Package http serves the JSON REST API.
//
// Every JSON response, success or failure, is wrapped in an Envelope. This
// file holds the fluent builder used by handlers to write it.
package http

import (
	"encoding/json"
	"mime"
	"net/http"
	"time"
)

// Envelope is the uniform response body.
type Envelope struct {
	Success    bool                `json:"success"`
	Data       any                 `json:"data"`
	Message    string              `json:"message,omitempty"`
	Errors     map[string][]string `json:"errors,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
	StatusCode int                 `json:"statusCode"`
}

// ResponseBuilder provides a fluent API for building enveloped responses.
type ResponseBuilder struct {
	statusCode int
	data       any
	message    string
	errors     map[string][]string
	headers    map[string]string
	now        func() time.Time
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
		now:        time.Now,
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Data sets the payload.
func (b *ResponseBuilder) Data(data any) *ResponseBuilder {
	b.data = data
	return b
}

// Message sets a human readable message.
func (b *ResponseBuilder) Message(msg string) *ResponseBuilder {
	b.message = msg
	return b
}

// Errors sets per-field error messages.
func (b *ResponseBuilder) Errors(fields map[string][]string) *ResponseBuilder {
	b.errors = fields
	return b
}

// Header sets a custom header on the response.
func (b *ResponseBuilder) Header(key, value string) *ResponseBuilder {
	b.headers[key] = value
	return b
}

// Envelope returns the body the builder would write.
func (b *ResponseBuilder) Envelope() Envelope {
	return Envelope{
		Success:    b.statusCode < 400,
		Data:       b.data,
		Message:    b.message,
		Errors:     b.errors,
		Timestamp:  b.now().UTC(),
		StatusCode: b.statusCode,
	}
}

// Write writes the enveloped response to w.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for k, v := range b.headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	// The status line is already out; a failed encode means the client went away.
	_ = json.NewEncoder(w).Encode(b.Envelope())
}

// OK writes data with status 200.
func OK(w http.ResponseWriter, data any) {
	NewResponse().Data(data).Write(w)
}

// Created writes data with status 201.
func Created(w http.ResponseWriter, data any, message string) {
	NewResponse().Status(http.StatusCreated).Data(data).Message(message).Write(w)
}

// Done writes a data-less success with a message.
func Done(w http.ResponseWriter, message string) {
	NewResponse().Message(message).Write(w)
}

// Attachment writes raw bytes as a download.
func Attachment(w http.ResponseWriter, name, contentType string, body []byte) {
	setAttachmentHeaders(w, name, contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func setAttachmentHeaders(w http.ResponseWriter, name, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
