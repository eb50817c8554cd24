package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	apierrors "github.com/imsportal/filingstack/api/errors"
	apperrors "github.com/imsportal/filingstack/internal/errors"
	"github.com/imsportal/filingstack/internal/tracing"
)

func statusFor(err error) int {
	var validation *apierrors.MultiErrors
	switch {
	case errors.As(err, &validation), errors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrProcessingInProgress), errors.Is(err, apperrors.ErrNotRetryable):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrConfiguration):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, span opentracing.Span, err error) {
	tracing.TraceErr(span, err)

	body := gin.H{"error": err.Error()}
	var validation *apierrors.MultiErrors
	if errors.As(err, &validation) {
		body["fields"] = validation.Fields()
	}
	c.JSON(statusFor(err), body)
}

func notFound(c *gin.Context, span opentracing.Span, what, id string) {
	respondError(c, span, fmt.Errorf("%s %s: %w", what, id, apperrors.ErrNotFound))
}
