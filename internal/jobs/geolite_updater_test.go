package jobs

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storepulse/internal/config"
	"storepulse/internal/settings"
	"storepulse/internal/testsupport"
)

type fakeGeo struct {
	reloads  int
	loadedAt time.Time
}

func (g *fakeGeo) Reload() {
	g.reloads++
	g.loadedAt = time.Now().Add(time.Hour)
}

func (g *fakeGeo) LoadedAt() time.Time { return g.loadedAt }

func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gzw.Close())
	return buf.Bytes()
}

func newUpdater(t *testing.T, path, licenseKey, downloadURL string, geo GeoDatabase) *GeoLiteUpdaterJob {
	t.Helper()
	dbManager, logger := testsupport.SetupTestDBManager(t)
	cfg := &config.Config{
		GeoDBPath:      path,
		GeoLicenseKey:  licenseKey,
		GeoDownloadURL: downloadURL,
	}
	return NewGeoLiteUpdaterJob(cfg, dbManager, geo, logger, time.Hour)
}

func TestGeoLiteUpdaterReloadsChangedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "GeoLite2-City.mmdb")
	require.NoError(t, os.WriteFile(path, []byte("db"), 0o644))

	geo := &fakeGeo{}
	job := newUpdater(t, path, "", "", geo)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, geo.reloads)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, geo.reloads, "an unchanged file is not reloaded")
}

func TestGeoLiteUpdaterWithoutFile(t *testing.T) {
	geo := &fakeGeo{}
	job := newUpdater(t, filepath.Join(t.TempDir(), "missing.mmdb"), "", "", geo)

	require.NoError(t, job.Run(context.Background()))
	assert.Zero(t, geo.reloads)
}

func TestGeoLiteUpdaterDownloads(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		"GeoLite2-City_20260101/COPYRIGHT.txt":      "maxmind",
		"GeoLite2-City_20260101/GeoLite2-City.mmdb": "fresh-db",
	})

	var hits atomic.Int32
	var gotKey atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		gotKey.Store(r.URL.Query().Get("license_key"))
		w.Write(archive)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "geo", "GeoLite2-City.mmdb")
	geo := &fakeGeo{}
	job := newUpdater(t, path, "secret", server.URL+"/download?license_key=%s", geo)

	require.NoError(t, job.Run(context.Background()))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh-db", string(content))
	assert.Equal(t, "secret", gotKey.Load())
	assert.Equal(t, 1, geo.reloads)

	lastUpdate, err := settings.GetSetting(job.dbManager.GetConnection(), KeyGeoLiteLastUpdate)
	require.NoError(t, err)
	assert.NotEmpty(t, lastUpdate)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, int32(1), hits.Load(), "a recent download is not repeated")
}

func TestGeoLiteUpdaterDownloadFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
		},
		{
			name: "archive without database",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write(buildArchive(t, map[string]string{"README.txt": "nothing here"}))
			},
		},
		{
			name: "not an archive",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("<html>maintenance</html>"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			path := filepath.Join(t.TempDir(), "GeoLite2-City.mmdb")
			geo := &fakeGeo{}
			job := newUpdater(t, path, "secret", server.URL, geo)

			assert.Error(t, job.Run(context.Background()))
			assert.Zero(t, geo.reloads)
			_, err := os.Stat(path)
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestMaintenanceJob(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	job := NewMaintenanceJob(dbManager, logger, time.Minute)

	assert.Equal(t, "maintenance", job.Name())
	assert.Equal(t, time.Minute, job.Interval())
	assert.NoError(t, job.Run(context.Background()))
}
