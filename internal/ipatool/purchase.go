package ipatool

import (
	"context"
	"encoding/json"
	"strings"
)

// PurchaseOutcome reports the result of a license acquisition attempt.
type PurchaseOutcome struct {
	// Acquired is true when the license is now held or was already held.
	Acquired bool

	// AuthRequired is true when the attempt failed because the session is
	// invalid; callers route this to the shared re-authentication path.
	AuthRequired bool

	// Reserved is true when the bundle identifier is in the vendor-reserved
	// namespace and cannot be purchased through the tool. Only the message
	// changes; Acquired is still false.
	Reserved bool

	// Message is a human-readable summary suitable for display.
	Message string
}

// Substrings that indicate a successful purchase in raw output. Checked
// before any JSON parsing because ipatool versions differ in how much of
// the result is structured.
var purchaseSuccessMarkers = []string{
	`"success": true`,
	`"success":true`,
	"license obtained",
	"already purchased",
	"already owned",
}

// Purchase invokes the external tool's purchase sub-operation for the given
// bundle identifier. Success detection is a layered parse: fast substring
// match, then per-line JSON, then classifier fallback.
func (c *Client) Purchase(ctx context.Context, bundleID, displayName string) PurchaseOutcome {
	name := displayName
	if name == "" {
		name = bundleID
	}

	if IsVendorReserved(bundleID) {
		return PurchaseOutcome{
			Reserved: true,
			Message:  name + " is published by Apple and cannot be purchased through ipatool.",
		}
	}

	out, err := c.runner.Run(ctx, c.binary,
		"purchase",
		"--bundle-identifier", bundleID,
		"--format", "json",
		"--non-interactive",
		"--verbose",
	)
	combined := string(out)

	if parsePurchaseSuccess(combined) {
		c.logger.Info("license acquired", "bundle_id", bundleID)
		return PurchaseOutcome{
			Acquired: true,
			Message:  "License obtained for " + name + ".",
		}
	}

	if err == nil {
		// Exit 0 without any recognizable success signal; treat it as held
		// rather than failing a download that may now work.
		c.logger.Warn("purchase exited 0 without success marker", "bundle_id", bundleID)
		return PurchaseOutcome{
			Acquired: true,
			Message:  "License obtained for " + name + ".",
		}
	}

	analysis := Classify(combined, "", name)
	if analysis.AuthError {
		return PurchaseOutcome{
			AuthRequired: true,
			Message:      analysis.UserMessage,
		}
	}
	return PurchaseOutcome{
		Message: "Could not obtain a license for " + name + ": " + firstErrorField(combined),
	}
}

// parsePurchaseSuccess applies the substring fast path and then a per-line
// JSON parse of any {...}-shaped line.
func parsePurchaseSuccess(output string) bool {
	lowered := strings.ToLower(output)
	for _, m := range purchaseSuccessMarkers {
		if strings.Contains(lowered, m) {
			return true
		}
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
			continue
		}
		var obj struct {
			Success *bool  `json:"success"`
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			continue
		}
		if obj.Success != nil && *obj.Success {
			return true
		}
		msg := strings.ToLower(obj.Message)
		if msg == "license obtained" {
			return true
		}
		errText := strings.ToLower(obj.Error)
		if strings.Contains(errText, "already purchased") || strings.Contains(errText, "already owned") {
			return true
		}
	}
	return false
}
