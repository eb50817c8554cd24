package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	apierrors "github.com/imsportal/filingstack/api/errors"
	apperrors "github.com/imsportal/filingstack/internal/errors"
)

func TestStatusFor(t *testing.T) {
	validation := apierrors.NewMultiErrors()
	validation.Add("name", "is required", nil)

	cases := map[string]struct {
		err  error
		want int
	}{
		"validation":  {validation, http.StatusBadRequest},
		"invalid":     {fmt.Errorf("bad limit: %w", apperrors.ErrInvalidInput), http.StatusBadRequest},
		"not found":   {fmt.Errorf("instance x: %w", apperrors.ErrNotFound), http.StatusNotFound},
		"busy":        {apperrors.ErrProcessingInProgress, http.StatusConflict},
		"not retry":   {fmt.Errorf("entry is filed: %w", apperrors.ErrNotRetryable), http.StatusConflict},
		"config":      {fmt.Errorf("managed mailbox is not enabled: %w", apperrors.ErrConfiguration), http.StatusUnprocessableEntity},
		"unexpected":  {errors.New("connection reset"), http.StatusInternalServerError},
		"wrapped 404": {fmt.Errorf("failed to update: %w", fmt.Errorf("x: %w", apperrors.ErrNotFound)), http.StatusNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusFor(tc.err))
		})
	}
}

func TestEmptyToNil(t *testing.T) {
	assert.Nil(t, emptyToNil(nil))
	blank := "  "
	assert.Nil(t, emptyToNil(&blank))
	mixed := " Acme "
	assert.Equal(t, "acme", *emptyToNil(&mixed))
}

func TestNormalizeLabel(t *testing.T) {
	label, err := normalizeLabel(" Acme-West ")
	assert.NoError(t, err)
	assert.Equal(t, "acme-west", label)

	label, err = normalizeLabel("bücher")
	assert.NoError(t, err)
	assert.Equal(t, "xn--bcher-kva", label)

	_, err = normalizeLabel("two.labels")
	assert.Error(t, err)
	_, err = normalizeLabel("-leading")
	assert.Error(t, err)
}
