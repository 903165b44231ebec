package jobs

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"storepulse/internal/config"
	"storepulse/internal/database"
	"storepulse/internal/settings"
)

const (
	// GeoLite database is updated weekly by MaxMind
	GeoLiteUpdateInterval = 7 * 24 * time.Hour
	// KeyGeoLiteLastUpdate records the last successful download.
	KeyGeoLiteLastUpdate = "geolite_last_update"
)

// GeoDatabase is the resolver side of the updater: it reopens the mmdb file.
type GeoDatabase interface {
	Reload()
	LoadedAt() time.Time
}

// GeoLiteUpdaterJob keeps the GeoLite2 database fresh. With a license key it
// downloads a new release weekly; in every case it reloads the resolver when
// the file on disk is newer than the one in memory.
type GeoLiteUpdaterJob struct {
	dbManager   *database.DBManager
	geo         GeoDatabase
	logger      *slog.Logger
	path        string
	licenseKey  string
	downloadURL string
	interval    time.Duration
	client      *http.Client
}

// NewGeoLiteUpdaterJob creates a new GeoLite updater job
func NewGeoLiteUpdaterJob(cfg *config.Config, dbManager *database.DBManager, geo GeoDatabase, logger *slog.Logger, interval time.Duration) *GeoLiteUpdaterJob {
	return &GeoLiteUpdaterJob{
		dbManager:   dbManager,
		geo:         geo,
		logger:      logger,
		path:        cfg.GeoDBPath,
		licenseKey:  cfg.GeoLicenseKey,
		downloadURL: cfg.GeoDownloadURL,
		interval:    interval,
		client:      &http.Client{Timeout: 5 * time.Minute},
	}
}

func (j *GeoLiteUpdaterJob) Name() string { return "geolite_updater" }

func (j *GeoLiteUpdaterJob) Interval() time.Duration { return j.interval }

// Run downloads a new database when one is due, then reloads it if needed.
func (j *GeoLiteUpdaterJob) Run(ctx context.Context) error {
	if j.path == "" {
		return nil
	}

	if j.licenseKey != "" && j.downloadDue() {
		j.logger.Info("Starting GeoLite database update", slog.String("path", j.path))
		if err := j.downloadAndUpdate(ctx); err != nil {
			return fmt.Errorf("update GeoLite database: %w", err)
		}
		if err := settings.UpdateSetting(j.dbManager.GetConnection(), KeyGeoLiteLastUpdate, time.Now().UTC().Format(time.RFC3339)); err != nil {
			j.logger.Error("Failed to update last update time", slog.Any("error", err))
		}
		j.logger.Info("GeoLite database updated successfully")
	}

	j.reloadIfChanged()
	return nil
}

func (j *GeoLiteUpdaterJob) downloadDue() bool {
	lastUpdateStr, err := settings.GetSetting(j.dbManager.GetConnection(), KeyGeoLiteLastUpdate)
	if err != nil || lastUpdateStr == "" {
		return true
	}
	lastUpdate, err := time.Parse(time.RFC3339, lastUpdateStr)
	if err != nil {
		return true
	}
	if age := time.Since(lastUpdate); age < GeoLiteUpdateInterval {
		j.logger.Debug("GeoLite database is up to date",
			slog.Time("last_update", lastUpdate),
			slog.Duration("age", age))
		return false
	}
	return true
}

func (j *GeoLiteUpdaterJob) reloadIfChanged() {
	info, err := os.Stat(j.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			j.logger.Warn("Failed to stat GeoLite database", slog.String("path", j.path), slog.Any("error", err))
		}
		return
	}
	if info.ModTime().After(j.geo.LoadedAt()) {
		j.geo.Reload()
	}
}

// downloadAndUpdate fetches the release archive and swaps the mmdb file in place.
func (j *GeoLiteUpdaterJob) downloadAndUpdate(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	url := j.downloadURL
	if strings.Contains(url, "%s") {
		url = fmt.Sprintf(url, j.licenseKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := j.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download GeoLite database: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	tempPath := j.path + ".download"
	defer os.Remove(tempPath)

	if err := extractMMDB(resp.Body, tempPath); err != nil {
		return fmt.Errorf("failed to extract database: %w", err)
	}
	if err := os.Rename(tempPath, j.path); err != nil {
		return fmt.Errorf("failed to replace database: %w", err)
	}
	return nil
}

// extractMMDB copies the first .mmdb entry of a tar.gz stream to destPath.
func extractMMDB(archive io.Reader, destPath string) error {
	gzr, err := gzip.NewReader(archive)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}

		if !strings.HasSuffix(header.Name, ".mmdb") {
			continue
		}

		outFile, err := os.Create(destPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		if _, err := io.Copy(outFile, tr); err != nil {
			outFile.Close()
			return fmt.Errorf("failed to extract file: %w", err)
		}
		return outFile.Close()
	}

	return fmt.Errorf("no .mmdb file found in archive")
}
