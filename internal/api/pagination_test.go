package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePage(t *testing.T) {
	tests := []struct {
		query string
		want  pageRequest
	}{
		{"", pageRequest{Number: 1, Limit: 50, Offset: 0}},
		{"?page=3&limit=20", pageRequest{Number: 3, Limit: 20, Offset: 40}},
		{"?page=-2&limit=abc", pageRequest{Number: 1, Limit: 50, Offset: 0}},
		{"?page=2&limit=9000", pageRequest{Number: 2, Limit: 500, Offset: 500}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/v1/deliveries"+tt.query, nil)
			assert.Equal(t, tt.want, parsePage(r, 50, 500))
		})
	}
}

func TestNewPage(t *testing.T) {
	p := newPage([]string(nil), pageRequest{Number: 1, Limit: 20}, 0)
	assert.Equal(t, []string{}, p.Data)
	assert.Equal(t, 1, p.Pagination.TotalPages)
	assert.False(t, p.Pagination.HasMore)

	p = newPage([]string{"a"}, pageRequest{Number: 2, Limit: 20, Offset: 20}, 41)
	assert.Equal(t, 3, p.Pagination.TotalPages)
	assert.True(t, p.Pagination.HasMore)
}
