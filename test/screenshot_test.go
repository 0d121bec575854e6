package tests

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbenzarti/botbench/model"
	"github.com/kbenzarti/botbench/screenshot"
)

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"simple":              "simple",
		"with spaces here":    "with_spaces_here",
		"path/to:test":        "path_to_test",
		"weird*?\"<>|":        "weird______",
		"":                    "screenshot",
		"greeting_hello":      "greeting_hello",
	}

	for input, want := range cases {
		if got := screenshot.SanitizeName(input); got != want {
			t.Errorf("SanitizeName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestCapturePlaceholder(t *testing.T) {
	dir := t.TempDir()
	mgr, err := screenshot.NewManager(dir)
	require.NoError(t, err)

	path, err := mgr.Capture(nil, "greeting hello", model.StatusFailed)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(filepath.Base(path), "greeting_hello_"))
	assert.True(t, strings.HasSuffix(path, ".png"))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	img, err := png.Decode(f)
	require.NoError(t, err, "placeholder must be a valid PNG")
	assert.Equal(t, 320, img.Bounds().Dx())
}

func TestCaptureNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	mgr, err := screenshot.NewManager(dir)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		path, err := mgr.Capture(nil, "same_test", model.StatusError)
		require.NoError(t, err)
		if seen[path] {
			t.Fatalf("path %s reused on capture %d", path, i)
		}
		seen[path] = true
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestCaptureRecords(t *testing.T) {
	mgr, err := screenshot.NewManager(t.TempDir())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := mgr.Capture(nil, fmt.Sprintf("test_%d", i), model.StatusPassed)
		require.NoError(t, err)
	}

	records := mgr.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "test_0", records[0].TestName)
	assert.Equal(t, model.StatusPassed, records[0].Status)
	assert.FileExists(t, records[0].FilePath)
}

func TestNewManagerCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "shots")
	_, err := screenshot.NewManager(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCaptureConcurrentWorkers(t *testing.T) {
	const workers = 16
	const capturesPerWorker = 8

	dir := t.TempDir()
	mgr, err := screenshot.NewManager(dir)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < capturesPerWorker; i++ {
				if _, err := mgr.Capture(nil, "stress_worker", model.StatusError); err != nil {
					t.Errorf("concurrent capture failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	records := mgr.Records()
	assert.Len(t, records, workers*capturesPerWorker, "every capture must be recorded")

	paths := make(map[string]bool)
	for _, r := range records {
		if paths[r.FilePath] {
			t.Errorf("path %s assigned twice", r.FilePath)
		}
		paths[r.FilePath] = true
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, workers*capturesPerWorker)
}

type fakeCapturer struct {
	content []byte
}

func (f *fakeCapturer) CaptureScreenshot(path string) error {
	return os.WriteFile(path, f.content, 0644)
}

func TestCaptureDelegatesToCapturer(t *testing.T) {
	mgr, err := screenshot.NewManager(t.TempDir())
	require.NoError(t, err)

	capturer := &fakeCapturer{content: []byte("browser-bytes")}
	path, err := mgr.Capture(capturer, "ui_case", model.StatusPassed)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "browser-bytes", string(data))
}
