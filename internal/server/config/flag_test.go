package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{"cmd",
				"-a", "127.0.0.1:9000", "-h", ":6000", "-d", "relay.db", "-store", "sqlite", "-s", "secret",
				"-t", "5", "-u", "30", "-w", "2", "-m", "1024", "-i", "1000", "-p", "keep",
			},
			expected: &Config{
				ListenAddr:             "127.0.0.1:9000",
				HealthAddrGRPC:         ":6000",
				DatabaseDSN:            "relay.db",
				StoreKind:              "sqlite",
				SecretKey:              "secret",
				TicketValidityDuration: 5 * time.Minute,
				UnauthenticatedTimeout: 30 * time.Second,
				WriteTimeout:           2 * time.Second,
				MaxFrameBytes:          1024,
				PasswordIterations:     1000,
				DuplicateSessionPolicy: "keep",
			},
		},
		{
			name:     "unknown flags are ignored",
			args:     []string{"cmd", "-x", "1", "-store", "memory"},
			expected: func() *Config { c := defaults(); c.StoreKind = "memory"; return c }(),
		},
		{
			name:        "bad integer",
			args:        []string{"cmd", "-t", "soon"},
			expectPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			config := defaults()

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config) })
				return
			}
			require.NotPanics(t, func() { parseFlags(config) })
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
