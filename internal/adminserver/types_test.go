// SPDX-License-Identifier: MPL-2.0

package adminserver

import (
	"errors"
	"testing"
	"time"
)

func TestHostAddress_IsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		addr HostAddress
		want bool
	}{
		{"localhost", "localhost", true},
		{"ipv4", "127.0.0.1", true},
		{"ipv6 loopback", "::1", true},
		{"all interfaces", "0.0.0.0", true},
		{"empty", "", false},
		{"whitespace only", "   ", false},
		{"tabs only", "\t", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ok, errs := tt.addr.IsValid()
			if ok != tt.want {
				t.Fatalf("HostAddress(%q).IsValid() = %v, want %v", tt.addr, ok, tt.want)
			}
			if tt.want {
				return
			}
			if len(errs) != 1 || !errors.Is(errs[0], ErrInvalidHostAddress) {
				t.Errorf("errors = %v, want one wrapping ErrInvalidHostAddress", errs)
			}
			var addrErr *InvalidHostAddressError
			if !errors.As(errs[0], &addrErr) || addrErr.Value != tt.addr {
				t.Errorf("error should be *InvalidHostAddressError for %q, got %T", tt.addr, errs[0])
			}
		})
	}
}

func TestTokenValue_IsValid(t *testing.T) {
	t.Parallel()

	if ok, errs := TokenValue("abc123").IsValid(); !ok {
		t.Errorf("IsValid() errors = %v", errs)
	}
	for _, v := range []TokenValue{"", " ", "\n"} {
		ok, errs := v.IsValid()
		if ok || len(errs) == 0 || !errors.Is(errs[0], ErrInvalidTokenValue) {
			t.Errorf("TokenValue(%q).IsValid() = %v, %v; want ErrInvalidTokenValue", v, ok, errs)
		}
	}
}

func TestListenPort_IsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		port ListenPort
		want bool
	}{
		{0, true},
		{22, true},
		{65535, true},
		{-1, false},
		{65536, false},
	}

	for _, tt := range tests {
		ok, errs := tt.port.IsValid()
		if ok != tt.want {
			t.Errorf("ListenPort(%d).IsValid() = %v, want %v", tt.port, ok, tt.want)
		}
		if !tt.want && (len(errs) == 0 || !errors.Is(errs[0], ErrInvalidListenPort)) {
			t.Errorf("ListenPort(%d) errors = %v, want ErrInvalidListenPort", tt.port, errs)
		}
	}
}

func TestConfig_IsValid(t *testing.T) {
	t.Parallel()

	if ok, errs := DefaultConfig().IsValid(); !ok {
		t.Fatalf("DefaultConfig().IsValid() errors = %v", errs)
	}

	cfg := Config{Host: " ", Port: 70000, TokenTTL: -time.Second}
	ok, errs := cfg.IsValid()
	if ok {
		t.Fatal("IsValid() = true, want false")
	}
	var cfgErr *InvalidConfigError
	if !errors.As(errs[0], &cfgErr) {
		t.Fatalf("error = %T, want *InvalidConfigError", errs[0])
	}
	if !errors.Is(errs[0], ErrInvalidConfig) {
		t.Error("error should wrap ErrInvalidConfig")
	}
	if len(cfgErr.FieldErrors) != 3 {
		t.Errorf("field errors = %v, want 3", cfgErr.FieldErrors)
	}
	if !errors.Is(cfgErr.FieldErrors[0], ErrInvalidHostAddress) || !errors.Is(cfgErr.FieldErrors[1], ErrInvalidListenPort) {
		t.Errorf("field errors = %v, want host then port", cfgErr.FieldErrors)
	}
}
