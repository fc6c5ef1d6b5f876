package instance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain host", "stats.example.com", "https://stats.example.com", false},
		{"explicit https", "https://stats.example.com", "https://stats.example.com", false},
		{"explicit http kept", "http://localhost:3000", "http://localhost:3000", false},
		{"trailing slash stripped", "https://stats.example.com/", "https://stats.example.com", false},
		{"trailing v1 stripped", "https://api.umami.is/v1", "https://api.umami.is", false},
		{"v1 with slash", "https://api.umami.is/v1/", "https://api.umami.is", false},
		{"subpath kept", "https://example.com/umami", "https://example.com/umami", false},
		{"cloud dashboard rewritten", "cloud.umami.is", "https://api.umami.is", false},
		{"cloud dashboard with scheme", "https://cloud.umami.is/", "https://api.umami.is", false},
		{"uppercase host lowered", "HTTPS://Stats.Example.COM", "https://stats.example.com", false},
		{"whitespace trimmed", "  stats.example.com  ", "https://stats.example.com", false},
		{"empty", "", "", true},
		{"blank", "   ", "", true},
		{"bad scheme", "ftp://example.com", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeHost(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
