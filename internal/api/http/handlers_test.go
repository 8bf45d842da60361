package http

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/folderstore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/folderstore/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/folderstore/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/folderstore/internal/providers/filesystem"
)

const testScratch = ".scratch"

var fixedNow = time.UnixMilli(1700000000000)

type testServer struct {
	router  *gin.Engine
	store   *filesystem.Provider
	metrics *monitoring.Metrics
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	metrics := monitoring.NewMetrics()
	store, err := filesystem.NewProvider(filesystem.Options{
		Root:           t.TempDir(),
		ScratchDir:     testScratch,
		MaxUploadBytes: opts.MaxUploadBytes,
	}, zap.NewNop(), metrics)
	require.NoError(t, err)
	store.Files.Now = func() time.Time { return fixedNow }

	tracer := tracing.New("test", zap.NewNop())
	t.Cleanup(tracer.Close)

	router := gin.New()
	router.Use(tracing.HTTPMiddleware(tracer))
	NewHandlers(store, tracer, metrics, zap.NewNop(), opts).Register(router)

	return &testServer{router: router, store: store, metrics: metrics}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) json(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	return s.do(t, req)
}

func (s *testServer) upload(t *testing.T, target, field, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("note", "skipped"))
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(t, req)
}

func (s *testServer) requireNoArtifacts(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(s.store.Root(), testScratch))
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directory should be empty")
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func requireError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	assert.Equal(t, code, decode(t, w)["code"])
}

// zipBytes builds a zip of uncompressed entries
func zipBytes(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func zipContents(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := map[string]string{}
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			out[f.Name] = ""
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out[f.Name] = string(body)
	}
	return out
}

func TestRootAndHealth(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "online", decode(t, w)["status"])

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Contains(t, body, "metrics")

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "folderstore_uptime_seconds")
}

func TestFolderLifecycle(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.json(t, http.MethodPost, "/createFolder", gin.H{"folderName": "reports"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Folder created successfully", decode(t, w)["message"])

	requireError(t, s.json(t, http.MethodPost, "/createFolder", gin.H{"folderName": "reports"}), http.StatusConflict, "already_exists")
	requireError(t, s.json(t, http.MethodPost, "/createFolder", gin.H{"folderName": "../escape"}), http.StatusBadRequest, "invalid_path")
	requireError(t, s.json(t, http.MethodPost, "/createFolder", gin.H{"folderName": testScratch}), http.StatusBadRequest, "invalid_path")
	requireError(t, s.json(t, http.MethodPost, "/createFolder", gin.H{}), http.StatusBadRequest, codeBadRequest)

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/allFolders", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"folders":[{"folder":"reports","files":[]}]}`, w.Body.String())

	w = s.json(t, http.MethodPost, "/deleteFolder", gin.H{"folderName": "reports"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Folder deleted successfully", decode(t, w)["message"])

	requireError(t, s.json(t, http.MethodPost, "/deleteFolder", gin.H{"folderName": "reports"}), http.StatusNotFound, "not_found")

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/allFolders", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"folders":[]}`, w.Body.String())
}

func TestListFoldersMatch(t *testing.T) {
	s := newTestServer(t, Options{})
	for _, name := range []string{"a.csv", "b.txt"} {
		require.Equal(t, http.StatusOK, s.upload(t, "/upload/reports", "file", name, []byte("x")).Code)
	}

	w := s.do(t, httptest.NewRequest(http.MethodGet, "/allFolders?match=*.csv", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"folders":[{"folder":"reports","files":["1700000000000-a.csv"]}]}`, w.Body.String())

	requireError(t, s.do(t, httptest.NewRequest(http.MethodGet, "/allFolders?match=%5B", nil)), http.StatusBadRequest, "invalid_path")
}

func TestFileRoutes(t *testing.T) {
	s := newTestServer(t, Options{})
	content := "region,total\nnorth,10\n"

	w := s.upload(t, "/upload/reports", "file", "q1.csv", []byte(content))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stored := decode(t, w)["file"]
	assert.Equal(t, "1700000000000-q1.csv", stored)

	t.Run("list files", func(t *testing.T) {
		w := s.do(t, httptest.NewRequest(http.MethodGet, "/folders/reports", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Folder string                `json:"folder"`
			Files  []filesystem.FileInfo `json:"files"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.Files, 1)
		assert.Equal(t, "1700000000000-q1.csv", body.Files[0].Name)
		assert.Equal(t, int64(len(content)), body.Files[0].Size)

		requireError(t, s.do(t, httptest.NewRequest(http.MethodGet, "/folders/missing", nil)), http.StatusNotFound, "not_found")
	})

	t.Run("download file", func(t *testing.T) {
		w := s.do(t, httptest.NewRequest(http.MethodGet, "/download/reports/1700000000000-q1.csv", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, content, w.Body.String())
		assert.Equal(t, `attachment; filename=1700000000000-q1.csv`, w.Header().Get("Content-Disposition"))
		assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/"), w.Header().Get("Content-Type"))

		req := httptest.NewRequest(http.MethodGet, "/download/reports/1700000000000-q1.csv", nil)
		req.Header.Set("Range", "bytes=0-5")
		w = s.do(t, req)
		assert.Equal(t, http.StatusPartialContent, w.Code)
		assert.Equal(t, "region", w.Body.String())

		requireError(t, s.do(t, httptest.NewRequest(http.MethodGet, "/download/reports/nope.csv", nil)), http.StatusNotFound, "not_found")
	})

	t.Run("rename file", func(t *testing.T) {
		w := s.json(t, http.MethodPut, "/renameFile/reports/1700000000000-q1.csv", gin.H{"newFileName": "q1.csv"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, map[string]any{
			"message":     "File renamed successfully",
			"folder":      "reports",
			"oldFileName": "1700000000000-q1.csv",
			"newFileName": "q1.csv",
		}, decode(t, w))
		assert.FileExists(t, filepath.Join(s.store.Root(), "reports", "q1.csv"))

		requireError(t, s.json(t, http.MethodPut, "/renameFile/reports/q1.csv", gin.H{"newFileName": "../q1.csv"}), http.StatusBadRequest, "invalid_path")
		requireError(t, s.json(t, http.MethodPut, "/renameFile/reports/missing.csv", gin.H{"newFileName": "x.csv"}), http.StatusNotFound, "not_found")
		requireError(t, s.json(t, http.MethodPut, "/renameFile/reports/q1.csv", gin.H{}), http.StatusBadRequest, codeBadRequest)
	})

	t.Run("delete file", func(t *testing.T) {
		w := s.do(t, httptest.NewRequest(http.MethodDelete, "/deleteFile/reports/q1.csv", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "File deleted successfully", decode(t, w)["message"])

		requireError(t, s.do(t, httptest.NewRequest(http.MethodDelete, "/deleteFile/reports/q1.csv", nil)), http.StatusNotFound, "not_found")
	})

	t.Run("upload without file part", func(t *testing.T) {
		requireError(t, s.upload(t, "/upload/reports", "other", "q1.csv", []byte("x")), http.StatusBadRequest, codeBadRequest)

		req := httptest.NewRequest(http.MethodPost, "/upload/reports", strings.NewReader("plain"))
		req.Header.Set("Content-Type", "text/plain")
		requireError(t, s.do(t, req), http.StatusBadRequest, codeBadRequest)
	})

	s.requireNoArtifacts(t)
}

// TestReportsScenario uploads a file, downloads the folder as a zip and
// restores it into another folder through the archive upload route
func TestReportsScenario(t *testing.T) {
	s := newTestServer(t, Options{})
	content := "region,total\nnorth,10\nsouth,12\n"

	require.Equal(t, http.StatusOK, s.json(t, http.MethodPost, "/createFolder", gin.H{"folderName": "reports"}).Code)
	require.Equal(t, http.StatusOK, s.upload(t, "/upload/reports", "file", "q1.csv", []byte(content)).Code)

	w := s.do(t, httptest.NewRequest(http.MethodGet, "/download/reports", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=reports.zip", w.Header().Get("Content-Disposition"))
	assert.NotEmpty(t, w.Header().Get(tracing.TraceHeader))

	archive := w.Body.Bytes()
	assert.Equal(t, content, zipContents(t, archive)["reports/1700000000000-q1.csv"])
	s.requireNoArtifacts(t)

	w = s.upload(t, "/uploadFolder/restore", "folder", "reports.zip", archive)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Folder uploaded and extracted successfully", body["message"])
	assert.Equal(t, "zip", body["format"])

	restored, err := os.ReadFile(filepath.Join(s.store.Root(), "restore", "reports", "1700000000000-q1.csv"))
	require.NoError(t, err)
	assert.Equal(t, content, string(restored))
	s.requireNoArtifacts(t)
}

func TestDownloadFolderFormats(t *testing.T) {
	s := newTestServer(t, Options{DefaultFormat: filesystem.FormatTarGz})
	require.Equal(t, http.StatusOK, s.upload(t, "/upload/logs", "file", "app.log", []byte("started\n")).Code)

	t.Run("configured default", func(t *testing.T) {
		w := s.do(t, httptest.NewRequest(http.MethodGet, "/download/logs", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "attachment; filename=logs.tar.gz", w.Header().Get("Content-Disposition"))

		gz, err := gzip.NewReader(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
		tr := tar.NewReader(gz)
		var names []string
		for {
			hdr, err := tr.Next()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			names = append(names, hdr.Name)
		}
		assert.Contains(t, names, "logs/1700000000000-app.log")
	})

	t.Run("query override", func(t *testing.T) {
		w := s.do(t, httptest.NewRequest(http.MethodGet, "/download/logs?format=zip", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "attachment; filename=logs.zip", w.Header().Get("Content-Disposition"))
		assert.Equal(t, "started\n", zipContents(t, w.Body.Bytes())["logs/1700000000000-app.log"])
	})

	t.Run("unknown format", func(t *testing.T) {
		requireError(t, s.do(t, httptest.NewRequest(http.MethodGet, "/download/logs?format=rar", nil)), http.StatusBadRequest, codeInvalidFormat)
	})

	t.Run("missing folder", func(t *testing.T) {
		requireError(t, s.do(t, httptest.NewRequest(http.MethodGet, "/download/nope", nil)), http.StatusNotFound, "not_found")
	})

	s.requireNoArtifacts(t)
}

func TestUploadFolderRejects(t *testing.T) {
	s := newTestServer(t, Options{MaxUploadBytes: 4 << 10})

	t.Run("traversal entry", func(t *testing.T) {
		archive := zipBytes(t, map[string]string{"../escape.txt": "owned"})
		requireError(t, s.upload(t, "/uploadFolder/target", "folder", "evil.zip", archive), http.StatusUnprocessableEntity, "unpack_error")
		assert.NoFileExists(t, filepath.Join(s.store.Root(), "escape.txt"))
	})

	t.Run("not an archive", func(t *testing.T) {
		requireError(t, s.upload(t, "/uploadFolder/target", "folder", "notes.txt", []byte("just text")), http.StatusUnprocessableEntity, "unpack_error")
	})

	t.Run("over the size limit", func(t *testing.T) {
		archive := zipBytes(t, map[string]string{"big.bin": strings.Repeat("x", 8<<10)})
		w := s.upload(t, "/uploadFolder/target", "folder", "big.zip", archive)
		requireError(t, w, http.StatusRequestEntityTooLarge, "too_large")
	})

	t.Run("missing part", func(t *testing.T) {
		requireError(t, s.upload(t, "/uploadFolder/target", "file", "a.zip", zipBytes(t, map[string]string{"a": "b"})), http.StatusBadRequest, codeBadRequest)
	})

	s.requireNoArtifacts(t)
}

func TestWriteGuard(t *testing.T) {
	guard := resilience.New("writes", resilience.Settings{
		Threshold: 1,
		Cooldown:  time.Hour,
		IsFailure: filesystem.IsDiskFull,
	})
	s := newTestServer(t, Options{WriteGuard: guard})

	require.Equal(t, http.StatusOK, s.upload(t, "/upload/reports", "file", "a.csv", []byte("x")).Code)

	diskFull := &os.PathError{Op: "write", Path: "x", Err: syscall.ENOSPC}
	require.ErrorIs(t, guard.Do(func() error { return diskFull }), syscall.ENOSPC)
	require.Equal(t, resilience.StateOpen, guard.State())

	requireError(t, s.upload(t, "/upload/reports", "file", "b.csv", []byte("x")), http.StatusInsufficientStorage, "disk_full")
	requireError(t, s.upload(t, "/uploadFolder/reports", "folder", "a.zip", zipBytes(t, map[string]string{"c": "d"})), http.StatusInsufficientStorage, "disk_full")
	assert.NoFileExists(t, filepath.Join(s.store.Root(), "reports", "1700000000000-b.csv"))
	assert.NoFileExists(t, filepath.Join(s.store.Root(), "reports", "c"))

	// reads are not guarded
	assert.Equal(t, http.StatusOK, s.do(t, httptest.NewRequest(http.MethodGet, "/download/reports", nil)).Code)
}

func TestOperationMetrics(t *testing.T) {
	s := newTestServer(t, Options{})

	s.json(t, http.MethodPost, "/createFolder", gin.H{"folderName": "reports"})
	s.json(t, http.MethodPost, "/createFolder", gin.H{"folderName": "reports"})
	s.do(t, httptest.NewRequest(http.MethodGet, "/download/reports", nil))

	snap := s.metrics.Snapshot()
	assert.Equal(t, int64(1), snap.Downloads)
	assert.Equal(t, int64(0), snap.ActiveArtifacts)

	w := s.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), `folderstore_operations_total{operation="create_folder",status="already_exists"} 1`)
	assert.Contains(t, w.Body.String(), `folderstore_operations_total{operation="create_folder",status="ok"} 1`)
}

// brokenWriter stands in for a client that goes away mid-download
type brokenWriter struct {
	*httptest.ResponseRecorder
	cancel context.CancelFunc
	fail   bool
}

func (w *brokenWriter) Write(p []byte) (int, error) {
	if w.cancel != nil {
		w.cancel()
	}
	if w.fail {
		return 0, syscall.EPIPE
	}
	return w.ResponseRecorder.Write(p)
}

func TestDownloadFolderInterrupted(t *testing.T) {
	tests := []struct {
		name   string
		fail   bool
		cancel bool
	}{
		{"write error", true, false},
		{"client gone", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, Options{})
			dir := filepath.Join(s.store.Root(), "reports")
			require.NoError(t, os.MkdirAll(dir, 0o755))
			require.NoError(t, os.WriteFile(filepath.Join(dir, "q1.csv"), []byte("region,total\n"), 0o644))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			w := &brokenWriter{ResponseRecorder: httptest.NewRecorder(), fail: tt.fail}
			if tt.cancel {
				w.cancel = cancel
			}
			req := httptest.NewRequest(http.MethodGet, "/download/reports", nil).WithContext(ctx)
			s.router.ServeHTTP(w, req)

			assert.Equal(t, float64(0), testutil.ToFloat64(s.metrics.TransfersTotal.WithLabelValues("download", "zip", "ok")))
			assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.TransfersTotal.WithLabelValues("download", "zip", "io_error")))
			assert.Equal(t, float64(0), testutil.ToFloat64(s.metrics.ArtifactsActive))

			entries, err := os.ReadDir(filepath.Join(s.store.Root(), testScratch))
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"body cap", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge, "too_large"},
		{"foreign", io.ErrUnexpectedEOF, http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}
