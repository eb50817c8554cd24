package errors

import (
	"fmt"
	"sort"
	"strings"
)

// MultiErrors collects request validation failures keyed by field name.
type MultiErrors struct {
	Errors map[string][]ErrorInfo
}

type ErrorInfo struct {
	Message  string
	RawError error
}

func NewMultiErrors() *MultiErrors {
	return &MultiErrors{
		Errors: make(map[string][]ErrorInfo),
	}
}

func (e *MultiErrors) Add(field, message string, err error) {
	e.Errors[field] = append(e.Errors[field], ErrorInfo{
		Message:  message,
		RawError: err,
	})
}

func (e *MultiErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Fields returns the messages per field, as sent back to API clients.
func (e *MultiErrors) Fields() map[string][]string {
	fields := make(map[string][]string, len(e.Errors))
	for field, infos := range e.Errors {
		for _, info := range infos {
			fields[field] = append(fields[field], info.Message)
		}
	}
	return fields
}

// Error lists every failure ordered by field name.
func (e *MultiErrors) Error() string {
	names := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		names = append(names, field)
	}
	sort.Strings(names)

	var parts []string
	for _, field := range names {
		for _, info := range e.Errors[field] {
			parts = append(parts, fmt.Sprintf("%s: %s", field, info.Message))
		}
	}
	return "invalid request: " + strings.Join(parts, " | ")
}

// Unwrap exposes the underlying causes to errors.Is and errors.As.
func (e *MultiErrors) Unwrap() []error {
	var causes []error
	for _, infos := range e.Errors {
		for _, info := range infos {
			if info.RawError != nil {
				causes = append(causes, info.RawError)
			}
		}
	}
	return causes
}
