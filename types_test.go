package sluice_test

import (
	"context"
	"testing"

	"github.com/sagarc03/sluice"
	"github.com/stretchr/testify/assert"
)

func TestServerMode_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		mode  sluice.ServerMode
		valid bool
	}{
		{
			name:  "static mode is valid",
			mode:  sluice.ModeStatic,
			valid: true,
		},
		{
			name:  "spa mode is valid",
			mode:  sluice.ModeSPA,
			valid: true,
		},
		{
			name:  "proxy mode is valid",
			mode:  sluice.ModeProxy,
			valid: true,
		},
		{
			name:  "empty mode is invalid",
			mode:  "",
			valid: false,
		},
		{
			name:  "random string is invalid",
			mode:  "invalid",
			valid: false,
		},
		{
			name:  "uppercase mode is invalid",
			mode:  "PROXY",
			valid: false,
		},
		{
			name:  "mixed case mode is invalid",
			mode:  "Static",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.mode.IsValid())
		})
	}
}

func TestParseServerMode(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantMode  sluice.ServerMode
		wantError bool
	}{
		{
			name:     "parse static mode",
			input:    "static",
			wantMode: sluice.ModeStatic,
		},
		{
			name:     "parse spa mode",
			input:    "spa",
			wantMode: sluice.ModeSPA,
		},
		{
			name:     "parse proxy mode",
			input:    "proxy",
			wantMode: sluice.ModeProxy,
		},
		{
			name:      "empty string returns error",
			input:     "",
			wantError: true,
		},
		{
			name:      "store mode is not served",
			input:     "store",
			wantError: true,
		},
		{
			name:      "uppercase mode returns error",
			input:     "SPA",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, err := sluice.ParseServerMode(tt.input)

			if tt.wantError {
				assert.ErrorIs(t, err, sluice.ErrInvalidMode)
				assert.Contains(t, err.Error(), tt.input)
				assert.Empty(t, mode)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.wantMode, mode)
			}
		})
	}
}

func TestByteRange_Len(t *testing.T) {
	assert.Equal(t, int64(1), sluice.ByteRange{Start: 5, End: 5}.Len())
	assert.Equal(t, int64(100), sluice.ByteRange{Start: 0, End: 99}.Len())
}

func TestHandlerFunc(t *testing.T) {
	var got *sluice.ReadableConnection
	rc := &sluice.ReadableConnection{Method: "GET", Pathname: "/index.html"}

	var h sluice.Handler = sluice.HandlerFunc(func(_ context.Context, rc *sluice.ReadableConnection, _ sluice.WritableConnection) {
		got = rc
	})
	h.ServeConnection(context.Background(), rc, nil)

	assert.Same(t, rc, got)
}
