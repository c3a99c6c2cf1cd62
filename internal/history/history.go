// Package history provides download tracking using GORM and SQLite
package history

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Sentinel errors following Dave Cheney's principle: define errors as values
var (
	ErrNilDownload   = errors.New("download cannot be nil")
	ErrNotFound      = errors.New("record not found")
	ErrEmptyBundleID = errors.New("bundle id cannot be empty")
)

// Status values for a download row.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// RecentSearchLimit caps how many recent searches are retained.
const RecentSearchLimit = 20

// Download represents one finished download attempt, successful or not
type Download struct {
	ID uint `gorm:"primaryKey"`

	AttemptID string `gorm:"index"`
	BundleID  string `gorm:"not null;index:idx_bundle"`
	Name      string
	Version   string
	Path      string
	SizeBytes int64

	Status       string `gorm:"not null;index:idx_status"`
	ErrorMessage string

	DownloadedAt time.Time `gorm:"not null"`
	DurationMS   int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Favorite is a bookmarked app
type Favorite struct {
	ID       uint   `gorm:"primaryKey"`
	BundleID string `gorm:"not null;uniqueIndex"`
	Name     string
	Note     string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecentSearch is one remembered search query, most recent use wins
type RecentSearch struct {
	ID       uint   `gorm:"primaryKey"`
	Query    string `gorm:"not null;uniqueIndex"`
	UsedAt   time.Time
	UseCount int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store defines the interface for history storage operations
type Store interface {
	Close() error
	RecordDownload(*Download) error
	ListAll() ([]*Download, error)
	ListByBundle(bundleID string) ([]*Download, error)
	ListByStatus(status string) ([]*Download, error)
	LastSuccessful(bundleID string) (*Download, error)
	AddFavorite(bundleID, name, note string) error
	RemoveFavorite(bundleID string) error
	ListFavorites() ([]*Favorite, error)
	RememberSearch(query string) error
	RecentSearches() ([]*RecentSearch, error)
	GetStats() (map[string]interface{}, error)
}

// DB wraps gorm.DB with our history operations
type DB struct {
	db *gorm.DB
}

// Config holds database configuration
type Config struct {
	DatabasePath string
	LogLevel     string // silent, error, warn, info
}

// InitDB initializes the database connection and runs migrations
func InitDB(cfg Config) (*DB, error) {
	logLevel := logger.Silent
	switch cfg.LogLevel {
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	case "info":
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&Download{}, &Favorite{}, &RecentSearch{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}

// RecordDownload creates a new download record
func (d *DB) RecordDownload(download *Download) error {
	if download == nil {
		return ErrNilDownload
	}
	if download.BundleID == "" {
		return ErrEmptyBundleID
	}
	if download.DownloadedAt.IsZero() {
		download.DownloadedAt = time.Now()
	}
	if err := d.db.Create(download).Error; err != nil {
		return fmt.Errorf("failed to record download: %w", err)
	}
	return nil
}

// ListAll returns all downloads, newest first
func (d *DB) ListAll() ([]*Download, error) {
	var downloads []*Download
	if err := d.db.Order("downloaded_at DESC").Find(&downloads).Error; err != nil {
		return nil, fmt.Errorf("failed to list downloads: %w", err)
	}
	return downloads, nil
}

// ListByBundle returns all downloads of a specific app, newest first
func (d *DB) ListByBundle(bundleID string) ([]*Download, error) {
	var downloads []*Download
	if err := d.db.Where("bundle_id = ?", bundleID).
		Order("downloaded_at DESC").Find(&downloads).Error; err != nil {
		return nil, fmt.Errorf("failed to list downloads for %s: %w", bundleID, err)
	}
	return downloads, nil
}

// ListByStatus returns all downloads with the given status, newest first
func (d *DB) ListByStatus(status string) ([]*Download, error) {
	var downloads []*Download
	if err := d.db.Where("status = ?", status).
		Order("downloaded_at DESC").Find(&downloads).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s downloads: %w", status, err)
	}
	return downloads, nil
}

// LastSuccessful returns the most recent successful download of an app
func (d *DB) LastSuccessful(bundleID string) (*Download, error) {
	var download Download
	err := d.db.Where("bundle_id = ? AND status = ?", bundleID, StatusSucceeded).
		Order("downloaded_at DESC").First(&download).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last download for %s: %w", bundleID, err)
	}
	return &download, nil
}

// AddFavorite bookmarks an app, updating the stored name on conflict
func (d *DB) AddFavorite(bundleID, name, note string) error {
	if bundleID == "" {
		return ErrEmptyBundleID
	}
	var fav Favorite
	err := d.db.Where("bundle_id = ?", bundleID).First(&fav).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		fav = Favorite{BundleID: bundleID, Name: name, Note: note}
		if err := d.db.Create(&fav).Error; err != nil {
			return fmt.Errorf("failed to add favorite %s: %w", bundleID, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to look up favorite %s: %w", bundleID, err)
	}

	updates := map[string]interface{}{}
	if name != "" {
		updates["name"] = name
	}
	if note != "" {
		updates["note"] = note
	}
	if len(updates) == 0 {
		return nil
	}
	if err := d.db.Model(&fav).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update favorite %s: %w", bundleID, err)
	}
	return nil
}

// RemoveFavorite deletes a bookmark
func (d *DB) RemoveFavorite(bundleID string) error {
	res := d.db.Where("bundle_id = ?", bundleID).Delete(&Favorite{})
	if res.Error != nil {
		return fmt.Errorf("failed to remove favorite %s: %w", bundleID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFavorites returns all bookmarks, alphabetical by name
func (d *DB) ListFavorites() ([]*Favorite, error) {
	var favorites []*Favorite
	if err := d.db.Order("name COLLATE NOCASE ASC").Find(&favorites).Error; err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	return favorites, nil
}

// RememberSearch upserts a search query and trims the history to
// RecentSearchLimit entries.
func (d *DB) RememberSearch(query string) error {
	if query == "" {
		return nil
	}
	now := time.Now()

	var search RecentSearch
	err := d.db.Where("query = ?", query).First(&search).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		search = RecentSearch{Query: query, UsedAt: now, UseCount: 1}
		if err := d.db.Create(&search).Error; err != nil {
			return fmt.Errorf("failed to remember search: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to look up search: %w", err)
	default:
		if err := d.db.Model(&search).Updates(map[string]interface{}{
			"used_at":   now,
			"use_count": search.UseCount + 1,
		}).Error; err != nil {
			return fmt.Errorf("failed to update search: %w", err)
		}
	}

	return d.trimSearches()
}

func (d *DB) trimSearches() error {
	var count int64
	if err := d.db.Model(&RecentSearch{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count searches: %w", err)
	}
	if count <= RecentSearchLimit {
		return nil
	}

	var stale []*RecentSearch
	if err := d.db.Order("used_at ASC").Limit(int(count - RecentSearchLimit)).
		Find(&stale).Error; err != nil {
		return fmt.Errorf("failed to find stale searches: %w", err)
	}
	for _, s := range stale {
		if err := d.db.Delete(s).Error; err != nil {
			return fmt.Errorf("failed to trim search history: %w", err)
		}
	}
	return nil
}

// RecentSearches returns remembered queries, most recently used first
func (d *DB) RecentSearches() ([]*RecentSearch, error) {
	var searches []*RecentSearch
	if err := d.db.Order("used_at DESC").Find(&searches).Error; err != nil {
		return nil, fmt.Errorf("failed to list recent searches: %w", err)
	}
	return searches, nil
}

// GetStats returns download statistics
func (d *DB) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var total int64
	if err := d.db.Model(&Download{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count total downloads: %w", err)
	}
	stats["total_downloads"] = total

	var statusCounts []struct {
		Status string
		Count  int64
	}
	if err := d.db.Model(&Download{}).Select("status, COUNT(*) as count").
		Group("status").Scan(&statusCounts).Error; err != nil {
		return nil, fmt.Errorf("failed to get status counts: %w", err)
	}
	stats["by_status"] = statusCounts

	var totalBytes struct {
		Sum int64
	}
	if err := d.db.Model(&Download{}).Select("COALESCE(SUM(size_bytes), 0) as sum").
		Where("status = ?", StatusSucceeded).Scan(&totalBytes).Error; err != nil {
		return nil, fmt.Errorf("failed to sum download sizes: %w", err)
	}
	stats["total_bytes"] = totalBytes.Sum

	return stats, nil
}
