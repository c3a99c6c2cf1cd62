package ipatool

import (
	"context"
	"errors"
	"testing"
)

func TestParseSearchOutput(t *testing.T) {
	tests := []struct {
		name      string
		output    string
		wantCount int
		wantErr   error
	}{
		{
			name:      "single result line",
			output:    `{"count":1,"apps":[{"bundleID":"com.example.app","name":"Example App","version":"2.0","price":0,"id":12345}]}`,
			wantCount: 1,
		},
		{
			name: "result among verbose logs",
			output: `time=12:00 level=INFO msg=searching
{"count":2,"apps":[{"bundleID":"a"},{"bundleID":"b"}]}`,
			wantCount: 2,
		},
		{
			name:      "empty apps array",
			output:    `{"count":0,"apps":[]}`,
			wantCount: 0,
		},
		{
			name:    "no json line",
			output:  "plain text only",
			wantErr: ErrNoResultLine,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSearchOutput(tt.output)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("parseSearchOutput() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && len(got) != tt.wantCount {
				t.Errorf("parseSearchOutput() returned %d apps, want %d", len(got), tt.wantCount)
			}
		})
	}
}

func TestSearch_ArgumentArray(t *testing.T) {
	runner := &MockCommandRunner{Output: []byte(`{"count":0,"apps":[]}`)}
	c := NewClient("ipatool", runner, discardLogger())

	if _, err := c.Search(context.Background(), "example", 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"ipatool", "search", "example", "-l", "5", "--format", "json", "--non-interactive"}
	got := runner.Calls[0]
	if len(got) != len(want) {
		t.Fatalf("argument array = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseDownloadMetadata(t *testing.T) {
	tests := []struct {
		name        string
		output      string
		wantName    string
		wantVersion string
	}{
		{
			name:        "full metadata line",
			output:      `{"appName":"Example App","appVer":"2.0"}`,
			wantName:    "Example App",
			wantVersion: "2.0",
		},
		{
			name: "metadata among logs",
			output: `level=INFO msg=downloading
{"appName":"Example App","appVersion":"3.1"}
{"success":true}`,
			wantName:    "Example App",
			wantVersion: "3.1",
		},
		{
			name:   "no metadata",
			output: "nothing structured here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDownloadMetadata(tt.output)
			if got.Name != tt.wantName || got.Version != tt.wantVersion {
				t.Errorf("ParseDownloadMetadata() = %+v, want {%q %q}", got, tt.wantName, tt.wantVersion)
			}
		})
	}
}
