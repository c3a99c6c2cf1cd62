package precheck

import (
	"context"
	"net/http"
	"os/exec"
	"time"
)

// probeTimeout bounds each individual reachability mechanism.
const probeTimeout = 5 * time.Second

// DefaultProber probes with the system ping binary and falls back to an
// HTTPS HEAD request when ping is unavailable or inconclusive. Sandboxed
// environments routinely lack ICMP, so an unavailable mechanism maps to
// ProbeUnavailable rather than a failure.
type DefaultProber struct {
	client *http.Client
}

// NewDefaultProber builds the standard two-stage prober.
func NewDefaultProber() *DefaultProber {
	return &DefaultProber{
		client: &http.Client{Timeout: probeTimeout},
	}
}

// Probe pings the host and, when ping is missing or fails, confirms with an
// HTTPS HEAD request. Only the HEAD result can report ProbeUnreachable.
func (p *DefaultProber) Probe(ctx context.Context, host string) ProbeStatus {
	if p.ping(ctx, host) == ProbeReachable {
		return ProbeReachable
	}
	return p.head(ctx, host)
}

func (p *DefaultProber) ping(ctx context.Context, host string) ProbeStatus {
	bin, err := exec.LookPath("ping")
	if err != nil {
		return ProbeUnavailable
	}
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := exec.CommandContext(pctx, bin, "-c", "1", "-W", "3", host).Run(); err != nil {
		// Ping can be blocked by the environment even when the network is
		// fine; the HTTPS fallback decides.
		return ProbeUnavailable
	}
	return ProbeReachable
}

func (p *DefaultProber) head(ctx context.Context, host string) ProbeStatus {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "https://"+host+"/", nil)
	if err != nil {
		return ProbeUnavailable
	}
	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ProbeUnavailable
		}
		return ProbeUnreachable
	}
	_ = resp.Body.Close()
	return ProbeReachable
}
