package cli

import (
	"context"
	"time"

	"github.com/ipagrab/ipagrab/internal/download"
	"github.com/ipagrab/ipagrab/internal/history"
	"github.com/ipagrab/ipagrab/internal/itunes"
)

// metadataSource adapts the cached iTunes lookup to the orchestrator's
// metadata interface.
type metadataSource struct {
	cache *itunes.VersionCache
}

func (m metadataSource) Lookup(ctx context.Context, bundleID string) (*download.Metadata, error) {
	app, err := m.cache.Lookup(ctx, bundleID)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, nil
	}
	return &download.Metadata{
		Name:      app.TrackName,
		Version:   app.Version,
		SizeBytes: app.SizeBytes(),
	}, nil
}

// historyRecorder adapts the sqlite history store to the orchestrator's
// recorder interface.
type historyRecorder struct {
	db *history.DB
}

func (r historyRecorder) RecordDownload(rec download.Record) error {
	return r.db.RecordDownload(&history.Download{
		AttemptID:    rec.AttemptID,
		BundleID:     rec.BundleID,
		Name:         rec.Name,
		Version:      rec.Version,
		Path:         rec.Path,
		SizeBytes:    rec.SizeBytes,
		Status:       rec.Status,
		ErrorMessage: rec.Error,
		DownloadedAt: time.Now(),
		DurationMS:   rec.Duration.Milliseconds(),
	})
}
