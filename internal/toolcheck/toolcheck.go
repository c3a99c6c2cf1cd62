// Package toolcheck verifies the installed ipatool binary: presence,
// version, and whether a newer release has shipped upstream. Everything
// here is advisory; a stale or unknown version never blocks a download.
package toolcheck

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/google/go-github/v57/github"

	"github.com/ipagrab/ipagrab/internal/ipatool"
)

// Sentinel errors for toolcheck operations.
var (
	ErrToolNotFound   = errors.New("ipatool binary not found")
	ErrVersionUnknown = errors.New("could not determine ipatool version")
)

// Upstream repository of the wrapped tool.
const (
	upstreamOwner = "majd"
	upstreamRepo  = "ipatool"
)

var versionPattern = regexp.MustCompile(`\d+\.\d+\.\d+`)

// ReleaseLister is the slice of the GitHub API the update check needs.
type ReleaseLister interface {
	GetLatestRelease(ctx context.Context, owner, repo string) (*github.RepositoryRelease, *github.Response, error)
}

// VersionRunner runs the tool's version command. Satisfied by
// *ipatool.Client.
type VersionRunner interface {
	Version(ctx context.Context) (string, error)
}

// Report is the outcome of a tool check.
type Report struct {
	Installed       string
	Latest          string
	UpdateAvailable bool

	// Notes carry advisory findings for display.
	Notes []string
}

// Checker probes the installed tool and, optionally, the upstream releases.
type Checker struct {
	runner   VersionRunner
	releases ReleaseLister
}

// New creates a checker. releases may be nil to skip the upstream lookup.
func New(runner VersionRunner, releases ReleaseLister) *Checker {
	return &Checker{runner: runner, releases: releases}
}

// NewGitHubLister returns a release lister backed by the public GitHub API.
func NewGitHubLister() ReleaseLister {
	return github.NewClient(nil).Repositories
}

// Check probes the installed binary and compares against the latest
// upstream release when a lister is configured. Upstream failures degrade
// to a note, never an error.
func (c *Checker) Check(ctx context.Context) (*Report, error) {
	raw, err := c.runner.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrToolNotFound, err)
	}

	installed := versionPattern.FindString(raw)
	if installed == "" {
		return nil, fmt.Errorf("%w: output %q", ErrVersionUnknown, strings.TrimSpace(raw))
	}

	report := &Report{Installed: installed}
	if c.releases == nil {
		return report, nil
	}

	release, _, err := c.releases.GetLatestRelease(ctx, upstreamOwner, upstreamRepo)
	if err != nil {
		report.Notes = append(report.Notes, fmt.Sprintf("could not reach the upstream release feed: %v", err))
		return report, nil
	}

	latest := versionPattern.FindString(release.GetTagName())
	if latest == "" {
		report.Notes = append(report.Notes, fmt.Sprintf("unrecognized upstream release tag %q", release.GetTagName()))
		return report, nil
	}
	report.Latest = latest

	current, cerr := semver.NewVersion(installed)
	upstream, uerr := semver.NewVersion(latest)
	if cerr != nil || uerr != nil {
		report.Notes = append(report.Notes, "could not compare versions")
		return report, nil
	}
	if upstream.GreaterThan(current) {
		report.UpdateAvailable = true
		report.Notes = append(report.Notes,
			fmt.Sprintf("ipatool %s is available (installed: %s)", latest, installed))
	}
	return report, nil
}

var _ VersionRunner = (*ipatool.Client)(nil)
