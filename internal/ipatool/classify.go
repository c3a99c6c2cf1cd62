package ipatool

import (
	"fmt"
	"strings"
)

// ErrorType categorizes a failed ipatool invocation.
type ErrorType string

const (
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeLicense     ErrorType = "license_required"
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeRateLimited ErrorType = "rate_limited"
	ErrorTypeMaintenance ErrorType = "maintenance"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Analysis is the structured classification of raw ipatool output.
type Analysis struct {
	Type            ErrorType
	AuthError       bool
	LicenseRequired bool
	UserMessage     string
}

// Marker sets per category, matched case-insensitively. Order of the
// category checks in Classify is the contract: auth beats everything,
// license beats network, and so on down to the unknown fallback.
var (
	authMarkers = []string{
		"failed to authenticate",
		"invalid credentials",
		"password token is expired",
		"session expired",
		"not logged in",
		"login required",
		"please login",
		"unauthorized",
		"authentication",
		"2fa code",
	}
	licenseMarkers = []string{
		"license is required",
		"license required",
		"needs a license",
		"no license found",
		"account does not have a license",
	}
	networkMarkers = []string{
		"bad record mac",
		"tls handshake",
		"tls:",
		"connection reset",
		"connection refused",
		"broken pipe",
		"network is unreachable",
		"no such host",
		"dial tcp",
		"unexpected eof",
	}
	timeoutMarkers = []string{
		"timed out",
		"timeout",
		"deadline exceeded",
	}
	rateLimitMarkers = []string{
		"too many requests",
		"rate limit",
		"status 429",
		"code 429",
	}
	maintenanceMarkers = []string{
		"service unavailable",
		"temporarily unavailable",
		"under maintenance",
		"status 503",
		"code 503",
	}
)

// Classify maps raw process output to a structured error category.
// It is a pure function of the combined stdout+stderr text plus the stderr
// text alone; displayName is only interpolated into the user message.
// First matching category wins, with auth short-circuiting all others.
func Classify(combined, stderr, displayName string) Analysis {
	haystack := strings.ToLower(combined + "\n" + stderr)
	name := displayName
	if name == "" {
		name = "the app"
	}

	switch {
	case containsAny(haystack, authMarkers):
		return Analysis{
			Type:        ErrorTypeAuth,
			AuthError:   true,
			UserMessage: fmt.Sprintf("Your App Store session is no longer valid. Sign in again with ipatool, then retry downloading %s.", name),
		}
	case containsAny(haystack, licenseMarkers):
		return Analysis{
			Type:            ErrorTypeLicense,
			LicenseRequired: true,
			UserMessage:     fmt.Sprintf("%s requires a license before it can be downloaded.", name),
		}
	case containsAny(haystack, networkMarkers):
		return Analysis{
			Type:        ErrorTypeNetwork,
			UserMessage: fmt.Sprintf("Network error while downloading %s. The connection was interrupted.", name),
		}
	case containsAny(haystack, timeoutMarkers):
		return Analysis{
			Type:        ErrorTypeTimeout,
			UserMessage: fmt.Sprintf("The download of %s timed out without making progress.", name),
		}
	case containsAny(haystack, rateLimitMarkers):
		return Analysis{
			Type:        ErrorTypeRateLimited,
			UserMessage: fmt.Sprintf("The App Store is rate limiting requests. The download of %s will be retried after a pause.", name),
		}
	case containsAny(haystack, maintenanceMarkers):
		return Analysis{
			Type:        ErrorTypeMaintenance,
			UserMessage: fmt.Sprintf("The App Store is temporarily unavailable. Try downloading %s again later.", name),
		}
	default:
		return Analysis{
			Type:        ErrorTypeUnknown,
			UserMessage: fmt.Sprintf("The download of %s failed for an unknown reason. Run with --log-level debug for the full ipatool output.", name),
		}
	}
}

func containsAny(haystack string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(haystack, m) {
			return true
		}
	}
	return false
}
