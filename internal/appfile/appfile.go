// Package appfile provides naming helpers for downloaded application archives.
package appfile

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Extension is the archive extension produced by the download tool.
const Extension = ".ipa"

// invalidChars are characters that cannot appear in filenames on at least one
// supported filesystem. Each occurrence is replaced with a dash.
const invalidChars = `/\?%*:|"<>`

// SanitizeName normalizes an application display name for use in a filename.
// Unicode is NFC-normalized so visually identical names from the catalog and
// the filesystem compare equal, and filesystem-invalid characters become "-".
func SanitizeName(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if strings.ContainsRune(invalidChars, r) {
			b.WriteRune('-')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Name builds the final archive filename for an app, "{name} {version}.ipa",
// falling back to "{name}.ipa" when the version is unknown.
func Name(displayName, version string) string {
	sanitized := SanitizeName(displayName)
	if version == "" {
		return sanitized + Extension
	}
	return sanitized + " " + version + Extension
}
