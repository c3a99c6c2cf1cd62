package appfile

import "testing"

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Example App", "Example App"},
		{"slash", "A/B Testing", "A-B Testing"},
		{"windows reserved", `What? 100% *Best* App: "Yes" <now>|ever`, "What- 100- -Best- App- -Yes- -now--ever"},
		{"backslash", `C:\Tools`, "C--Tools"},
		{"trimmed", "  Spaced  ", "Spaced"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.in); got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		name    string
		display string
		version string
		want    string
	}{
		{"with version", "Example App", "2.0", "Example App 2.0.ipa"},
		{"without version", "Example App", "", "Example App.ipa"},
		{"sanitized", "A/B", "1.0", "A-B 1.0.ipa"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Name(tt.display, tt.version); got != tt.want {
				t.Errorf("Name(%q, %q) = %q, want %q", tt.display, tt.version, got, tt.want)
			}
		})
	}
}
