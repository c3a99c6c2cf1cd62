package ipatool

import (
	"encoding/json"
	"strings"
)

// DownloadMetadata is the app metadata ipatool reports while downloading.
// Field coverage varies across tool versions, so everything is optional.
type DownloadMetadata struct {
	Name    string
	Version string
}

// ParseDownloadMetadata scans output lines for a JSON object naming the app
// being downloaded. Verbose runs interleave log lines with the result line,
// so each {...}-shaped line is tried and the last match wins.
func ParseDownloadMetadata(output string) DownloadMetadata {
	var meta DownloadMetadata
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
			continue
		}
		var obj struct {
			AppName    string `json:"appName"`
			AppVer     string `json:"appVer"`
			AppVersion string `json:"appVersion"`
		}
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			continue
		}
		if obj.AppName != "" {
			meta.Name = obj.AppName
		}
		if obj.AppVer != "" {
			meta.Version = obj.AppVer
		}
		if obj.AppVersion != "" {
			meta.Version = obj.AppVersion
		}
	}
	return meta
}
