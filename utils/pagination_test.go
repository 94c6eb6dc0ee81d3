package utils

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int {
	return &n
}

func TestGetPaginationParams(t *testing.T) {
	tests := []struct {
		name       string
		offset     *int
		limit      *int
		wantOffset int
		wantLimit  int
	}{
		{name: "defaults", wantOffset: 0, wantLimit: 20},
		{name: "explicit", offset: intPtr(40), limit: intPtr(10), wantOffset: 40, wantLimit: 10},
		{name: "negative offset", offset: intPtr(-5), wantOffset: 0, wantLimit: 20},
		{name: "zero limit", limit: intPtr(0), wantOffset: 0, wantLimit: 20},
		{name: "capped limit", limit: intPtr(1000), wantOffset: 0, wantLimit: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset, limit := GetPaginationParams(tt.offset, tt.limit)
			assert.Equal(t, tt.wantOffset, offset)
			assert.Equal(t, tt.wantLimit, limit)
		})
	}
}

func TestOptionalIntQuery(t *testing.T) {
	values := url.Values{"offset": {"15"}, "limit": {""}, "bad": {"ten"}}

	n, err := OptionalIntQuery(values, "offset")
	require.NoError(t, err)
	assert.Equal(t, 15, *n)

	n, err = OptionalIntQuery(values, "limit")
	require.NoError(t, err)
	assert.Nil(t, n)

	n, err = OptionalIntQuery(values, "missing")
	require.NoError(t, err)
	assert.Nil(t, n)

	_, err = OptionalIntQuery(values, "bad")
	assert.EqualError(t, err, "query parameter bad must be an integer")
}
