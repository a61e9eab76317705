package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_IsMatchesByCode(t *testing.T) {
	err := NotFound("Invoice not found")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, fmt.Errorf("load invoice: %w", err), ErrNotFound)
	assert.Equal(t, "Invoice not found", err.Error())
}

func TestDomainError_As(t *testing.T) {
	wrapped := fmt.Errorf("generate: %w", AlreadyExists("Invoice already exists for period"))

	var de *DomainError
	assert.True(t, errors.As(wrapped, &de))
	assert.Equal(t, CodeAlreadyExists, de.Code)
}

func TestFilter_Paging(t *testing.T) {
	tests := []struct {
		name       string
		filter     Filter
		wantOffset int
		wantLimit  int
	}{
		{"defaults", Filter{}, 0, 20},
		{"second page", Filter{Page: 2, PageSize: 50}, 50, 50},
		{"capped page size", Filter{Page: 1, PageSize: 10000}, 0, 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantOffset, tt.filter.Offset())
			assert.Equal(t, tt.wantLimit, tt.filter.Limit())
		})
	}
}
