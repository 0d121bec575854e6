package screenshot

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kbenzarti/botbench/logger"
	"github.com/kbenzarti/botbench/model"
)

// Capturer renders a screenshot to a file. The UI driver satisfies this;
// API-only runs use the placeholder fallback instead.
type Capturer interface {
	CaptureScreenshot(path string) error
}

// Manager owns the screenshots directory and guarantees that no capture
// ever overwrites an earlier one. Safe for concurrent use; stress workers
// capture from multiple goroutines.
type Manager struct {
	mu      sync.Mutex
	dir     string
	records []model.ScreenshotRecord
}

func NewManager(dir string) (*Manager, error) {
	if dir == "" {
		dir = model.DefaultScreenshotsDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create screenshots directory: %w", err)
	}

	return &Manager{dir: dir}, nil
}

// Capture takes a screenshot for the given test. When capturer is nil a
// placeholder image is written instead, so failure evidence exists even in
// API-only runs. The returned path is unique; existing files are never
// touched.
func (m *Manager) Capture(capturer Capturer, testName string, status model.Status) (string, error) {
	// The lock spans path selection through file creation so two concurrent
	// captures can never settle on the same path.
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	path := m.uniquePath(testName, now)

	var err error
	if capturer != nil {
		err = capturer.CaptureScreenshot(path)
	} else {
		err = writePlaceholder(path, status)
	}
	if err != nil {
		return "", fmt.Errorf("failed to capture screenshot for %s: %w", testName, err)
	}

	m.records = append(m.records, model.ScreenshotRecord{
		TestName:  testName,
		Timestamp: now,
		Status:    status,
		FilePath:  path,
	})

	logger.Logger.Debug("Screenshot saved", "test", testName, "path", path)
	return path, nil
}

// Records returns a copy of all captures taken so far.
func (m *Manager) Records() []model.ScreenshotRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.ScreenshotRecord, len(m.records))
	copy(out, m.records)
	return out
}

// uniquePath builds <dir>/<name>_<timestamp>.png, appending a counter
// suffix when two captures of the same test land in the same second.
func (m *Manager) uniquePath(testName string, ts time.Time) string {
	base := fmt.Sprintf("%s_%s", SanitizeName(testName), ts.Format("20060102_150405"))

	path := filepath.Join(m.dir, base+".png")
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(m.dir, fmt.Sprintf("%s_%d.png", base, i))
	}
}

// SanitizeName makes a test name safe for use as a filename.
func SanitizeName(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		" ", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	sanitized := replacer.Replace(name)
	if sanitized == "" {
		sanitized = "screenshot"
	}
	return sanitized
}

// writePlaceholder renders a small solid-color PNG keyed by status, used
// when no browser session is attached.
func writePlaceholder(path string, status model.Status) error {
	fill := color.RGBA{R: 0x95, G: 0xa5, B: 0xa6, A: 0xff}
	switch status {
	case model.StatusPassed:
		fill = color.RGBA{R: 0x27, G: 0xae, B: 0x60, A: 0xff}
	case model.StatusFailed:
		fill = color.RGBA{R: 0xe7, G: 0x4c, B: 0x3c, A: 0xff}
	case model.StatusError:
		fill = color.RGBA{R: 0xf3, G: 0x9c, B: 0x12, A: 0xff}
	}

	img := image.NewRGBA(image.Rect(0, 0, 320, 180))
	for y := 0; y < 180; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, fill)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, logger.FilePermission)
	if err != nil {
		return err
	}
	defer f.Close()

	return png.Encode(f, img)
}
