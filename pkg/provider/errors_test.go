package provider_test

import (
	"net/http"
	"testing"

	"github.com/MrWong99/voxpipe/pkg/provider"
)

func TestIsLimitStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code int
		want bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusPaymentRequired, true},
		{http.StatusUnauthorized, false},
		{http.StatusOK, false},
		{http.StatusInternalServerError, false},
	}
	for _, tc := range tests {
		if got := provider.IsLimitStatus(tc.code); got != tc.want {
			t.Errorf("IsLimitStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}
