package redis

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Keys(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"token", tokenKey("adj:", "abc"), "adj:token:abc"},
		{"task tokens", taskTokensKey("adj:", "t1"), "adj:task-tokens:t1"},
		{"by creation", tokensByCreation(""), "tokens-by-creation"},
		{"expiring", tokensExpiring("adj:"), "adj:tokens-expiring"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.key)
		})
	}
}
