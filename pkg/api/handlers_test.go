package api

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/shelf/pkg/manifest"
	"github.com/platinummonkey/shelf/pkg/observability"
	"github.com/platinummonkey/shelf/pkg/registry"
)

type nullPublisher struct{}

func (nullPublisher) Upload(ctx context.Context, localPath, key string) error {
	_, err := os.Stat(localPath)
	return err
}
func (nullPublisher) Delete(ctx context.Context, key string) error { return nil }

func (nullPublisher) DeletePrefix(ctx context.Context, prefix string) error { return nil }

type apiFixture struct {
	server  *httptest.Server
	logoDir string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	root := t.TempDir()
	logoDir := filepath.Join(root, "logos")

	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := registry.NewSQLStore(context.Background(), db, registry.DialectSQLite)
	require.NoError(t, err)

	extractor, err := manifest.NewExtractor(logoDir)
	require.NoError(t, err)

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(nil)

	service, err := registry.NewService(registry.Options{
		Store:       store,
		Blob:        nullPublisher{},
		Extractor:   extractor,
		Logger:      logger,
		Metrics:     metrics,
		UploadDir:   filepath.Join(root, "uploads"),
		ScratchRoot: filepath.Join(root, "scratch"),
		KeyPrefix:   "plugins/custom",
	})
	require.NoError(t, err)

	router := NewRouter(ServerOptions{
		Service:        service,
		Logger:         logger,
		Metrics:        metrics,
		LogoDir:        logoDir,
		MaxUploadBytes: 16 << 20,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &apiFixture{server: server, logoDir: logoDir}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func demoZip(t *testing.T, version string, extra map[string]string) []byte {
	t.Helper()

	files := map[string]string{
		"plugin.yaml": fmt.Sprintf("plugin_id: demo-plugin\nname: Demo\nversion: %s\n", version),
	}
	for name, content := range extra {
		files[name] = content
	}

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func (fx *apiFixture) upload(t *testing.T, archive []byte) *http.Response {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "demo.zip")
	require.NoError(t, err)
	_, err = part.Write(archive)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(fx.server.URL+"/uploadPlugin", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func (fx *apiFixture) postJSON(t *testing.T, path string, payload interface{}) *http.Response {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(fx.server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func (fx *apiFixture) stageAndCommit(t *testing.T, version, author, secret string) {
	t.Helper()

	resp := fx.upload(t, demoZip(t, version, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env := decodeEnvelope(t, resp)

	var preview registry.StagePreview
	require.NoError(t, json.Unmarshal(env.Data, &preview))
	require.True(t, preview.Ready)

	commit := decodeEnvelope(t, fx.postJSON(t, "/commitPlugin", map[string]interface{}{
		"file":       preview.File,
		"name":       preview.Name,
		"version":    preview.Version,
		"plugin_id":  preview.PluginID,
		"author":     author,
		"secret_key": secret,
	}))
	require.Equal(t, http.StatusOK, commit.Code)
}

func TestUploadPluginReturnsPreview(t *testing.T) {
	fx := newAPIFixture(t)

	resp := fx.upload(t, demoZip(t, "1.0.0", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	assert.Equal(t, http.StatusOK, env.Code)

	var preview registry.StagePreview
	require.NoError(t, json.Unmarshal(env.Data, &preview))
	assert.Equal(t, "demo-plugin", preview.PluginID)
	assert.True(t, preview.Ready)
	assert.NotEmpty(t, preview.File)
}

func TestUploadPluginRejectsBadArchive(t *testing.T) {
	fx := newAPIFixture(t)

	resp := fx.upload(t, []byte("not a zip"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	assert.Equal(t, http.StatusBadRequest, env.Code)
	assert.Contains(t, env.Message, "failed to extract")
}

func TestUploadPluginMissingFileField(t *testing.T) {
	fx := newAPIFixture(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("other", "value"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(fx.server.URL+"/uploadPlugin", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestCommitAndListPlugins(t *testing.T) {
	fx := newAPIFixture(t)
	fx.stageAndCommit(t, "1.0.0", "tester", "s3cr3t")

	env := decodeEnvelope(t, fx.postJSON(t, "/getPlugins", map[string]interface{}{}))
	require.Equal(t, http.StatusOK, env.Code)

	var releases []registry.PluginRelease
	require.NoError(t, json.Unmarshal(env.Data, &releases))
	require.Len(t, releases, 1)
	assert.Equal(t, "demo-plugin", releases[0].PluginID)
	assert.Equal(t, "1.0.0", releases[0].Version)
	assert.Equal(t, 1, releases[0].OnShelf)
}

func TestCommitValidation(t *testing.T) {
	fx := newAPIFixture(t)

	env := decodeEnvelope(t, fx.postJSON(t, "/commitPlugin", map[string]interface{}{
		"plugin_id": "demo-plugin",
	}))
	assert.Equal(t, http.StatusBadRequest, env.Code)
}

func TestCommitWrongSecretEnvelope(t *testing.T) {
	fx := newAPIFixture(t)
	fx.stageAndCommit(t, "1.0.0", "tester", "s3cr3t")

	resp := fx.upload(t, demoZip(t, "1.1.0", nil))
	env := decodeEnvelope(t, resp)
	var preview registry.StagePreview
	require.NoError(t, json.Unmarshal(env.Data, &preview))

	commit := decodeEnvelope(t, fx.postJSON(t, "/commitPlugin", map[string]interface{}{
		"file":       preview.File,
		"name":       preview.Name,
		"version":    preview.Version,
		"plugin_id":  preview.PluginID,
		"author":     "impostor",
		"secret_key": "wrong",
	}))
	assert.Equal(t, http.StatusInternalServerError, commit.Code)
	assert.Contains(t, commit.Message, "secret key mismatch")
}

func TestDeletePluginSoft(t *testing.T) {
	fx := newAPIFixture(t)
	fx.stageAndCommit(t, "1.0.0", "tester", "s3cr3t")

	env := decodeEnvelope(t, fx.postJSON(t, "/deletePlugin", map[string]interface{}{
		"plugin_id":  "demo-plugin",
		"version":    "1.0.0",
		"secret_key": "s3cr3t",
	}))
	require.Equal(t, http.StatusOK, env.Code)

	list := decodeEnvelope(t, fx.postJSON(t, "/getPlugins", map[string]interface{}{}))
	var releases []registry.PluginRelease
	require.NoError(t, json.Unmarshal(list.Data, &releases))
	assert.Empty(t, releases)
}

func TestDeletePluginEmptySecretEnvelope(t *testing.T) {
	fx := newAPIFixture(t)
	fx.stageAndCommit(t, "1.0.0", "tester", "s3cr3t")

	env := decodeEnvelope(t, fx.postJSON(t, "/deletePlugin", map[string]interface{}{
		"plugin_id": "demo-plugin",
		"version":   "1.0.0",
	}))
	assert.Equal(t, http.StatusInternalServerError, env.Code)
	assert.Contains(t, env.Message, "must not be empty")
}

func TestImageServesPublishedLogo(t *testing.T) {
	fx := newAPIFixture(t)

	resp := fx.upload(t, demoZip(t, "1.0.0", map[string]string{"logo.png": "\x89PNG fake"}))
	env := decodeEnvelope(t, resp)
	var preview registry.StagePreview
	require.NoError(t, json.Unmarshal(env.Data, &preview))
	require.NotEmpty(t, preview.Logo)

	// The stored logo value is exactly what the image endpoint serves by.
	img, err := http.Get(fx.server.URL + "/image?path=" + preview.Logo)
	require.NoError(t, err)
	defer img.Body.Close()

	assert.Equal(t, http.StatusOK, img.StatusCode)
	assert.Equal(t, "image/png", img.Header.Get("Content-Type"))
	body, err := io.ReadAll(img.Body)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG fake", string(body))
}

func TestImageRejectsTraversal(t *testing.T) {
	fx := newAPIFixture(t)

	resp, err := http.Get(fx.server.URL + "/image?path=..%2F..%2Fetc%2Fpasswd")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestImageNotFound(t *testing.T) {
	fx := newAPIFixture(t)

	resp, err := http.Get(fx.server.URL + "/image?path=missing.png")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	fx := newAPIFixture(t)

	health, err := http.Get(fx.server.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, health.StatusCode)
	health.Body.Close()

	metrics, err := http.Get(fx.server.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	assert.Equal(t, http.StatusOK, metrics.StatusCode)
	body, err := io.ReadAll(metrics.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "shelf_http_requests_total")
}
