package ipatool

import (
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		combined    string
		stderr      string
		wantType    ErrorType
		wantAuth    bool
		wantLicense bool
	}{
		{
			name:     "auth failure",
			combined: `{"error":"failed to authenticate: invalid credentials"}`,
			wantType: ErrorTypeAuth,
			wantAuth: true,
		},
		{
			name:     "expired password token",
			combined: `{"error":"password token is expired"}`,
			wantType: ErrorTypeAuth,
			wantAuth: true,
		},
		{
			name:        "license required",
			combined:    `{"error":"license is required"}`,
			wantType:    ErrorTypeLicense,
			wantLicense: true,
		},
		{
			name:     "bad record MAC",
			combined: "Get https://...: local error: tls: bad record MAC",
			wantType: ErrorTypeNetwork,
		},
		{
			name:     "connection reset",
			stderr:   "read tcp 10.0.0.2:54122: connection reset by peer",
			wantType: ErrorTypeNetwork,
		},
		{
			name:     "timeout",
			combined: "operation timed out after 600s",
			wantType: ErrorTypeTimeout,
		},
		{
			name:     "rate limited",
			combined: `{"error":"too many requests"}`,
			wantType: ErrorTypeRateLimited,
		},
		{
			name:     "maintenance",
			combined: "503 service unavailable",
			wantType: ErrorTypeMaintenance,
		},
		{
			name:     "unknown",
			combined: "something exploded",
			wantType: ErrorTypeUnknown,
		},
		{
			name:     "auth beats network",
			combined: "tls: bad record MAC",
			stderr:   "failed to authenticate",
			wantType: ErrorTypeAuth,
			wantAuth: true,
		},
		{
			name:        "license beats network",
			combined:    "license is required; connection reset by peer",
			wantType:    ErrorTypeLicense,
			wantLicense: true,
		},
		{
			name:     "network beats timeout",
			combined: "dial tcp: i/o timed out, connection refused",
			wantType: ErrorTypeNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.combined, tt.stderr, "Example App")
			if got.Type != tt.wantType {
				t.Errorf("Classify() type = %v, want %v", got.Type, tt.wantType)
			}
			if got.AuthError != tt.wantAuth {
				t.Errorf("Classify() AuthError = %v, want %v", got.AuthError, tt.wantAuth)
			}
			if got.LicenseRequired != tt.wantLicense {
				t.Errorf("Classify() LicenseRequired = %v, want %v", got.LicenseRequired, tt.wantLicense)
			}
			if got.UserMessage == "" {
				t.Error("Classify() UserMessage must never be empty")
			}
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	combined := "tls: bad record MAC\nfailed to authenticate"
	first := Classify(combined, "", "Example App")
	for i := 0; i < 10; i++ {
		if got := Classify(combined, "", "Example App"); got != first {
			t.Fatalf("Classify() not deterministic: %+v != %+v", got, first)
		}
	}
}

func TestClassify_DisplayNameFallback(t *testing.T) {
	got := Classify("something exploded", "", "")
	if got.UserMessage == "" {
		t.Fatal("expected a message")
	}
	// Empty names fall back to a generic subject rather than interpolating "".
	if want := "the app"; !strings.Contains(got.UserMessage, want) {
		t.Errorf("UserMessage %q does not mention %q", got.UserMessage, want)
	}
}
