package cli

import (
	"strings"
	"testing"
)

func TestNewApp(t *testing.T) {
	app := NewApp()

	if app.Name != "ipagrab" {
		t.Errorf("app name = %q", app.Name)
	}

	want := []string{"download", "search", "purchase", "lookup", "history", "favorites", "doctor"}
	have := make(map[string]bool)
	for _, cmd := range app.Commands {
		have[cmd.Name] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("missing command %q", name)
		}
	}
}

func TestPromptConfirmer(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"yes", "y\n", true},
		{"yes word", "YES\n", true},
		{"no", "n\n", false},
		{"empty line defaults to no", "\n", false},
		{"garbage", "maybe\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			p := newPromptConfirmer(strings.NewReader(tt.input), &out)
			got, err := p.ConfirmOverwrite("/downloads/app.ipa")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ConfirmOverwrite(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !strings.Contains(out.String(), "Overwrite?") {
				t.Errorf("prompt not written: %q", out.String())
			}
		})
	}
}

func TestPromptConfirmer_ClosedInputDeclines(t *testing.T) {
	var out strings.Builder
	p := newPromptConfirmer(strings.NewReader(""), &out)
	got, err := p.ConfirmOverwrite("/downloads/app.ipa")
	if err == nil {
		t.Fatal("expected an error for closed input")
	}
	if got {
		t.Error("closed input must decline")
	}
}

func TestAutoConfirmer(t *testing.T) {
	got, err := autoConfirmer{}.ConfirmOverwrite("anything")
	if err != nil || !got {
		t.Errorf("autoConfirmer = (%v, %v), want (true, nil)", got, err)
	}
}
