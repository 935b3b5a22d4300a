package integrations

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/haloassist/halo/pkg/eventbus"
)

// ScreenshotTTL is how long a cached screenshot file is kept before
// CleanupOld reaps it, per §6's "auto-reaped after 24 h".
const ScreenshotTTL = 24 * time.Hour

// ScreenshotCapture shells out to the platform's screenshot CLI (no
// pure-Go screen-capture library appears anywhere in the reference
// corpus; original_source's own fallback path does exactly this: shell
// out to `screencapture` on macOS) and publishes screenshot.captured,
// grounded on screenshot_capture_integration.py's CLI-fallback path.
type ScreenshotCapture struct {
	bus     *eventbus.Bus
	cacheDir string
	command  func(path string) *exec.Cmd
}

// NewScreenshotCapture wires a ScreenshotCapture caching JPEGs under
// cacheDir.
func NewScreenshotCapture(bus *eventbus.Bus, cacheDir string) *ScreenshotCapture {
	return &ScreenshotCapture{bus: bus, cacheDir: cacheDir, command: platformScreenshotCommand}
}

// platformScreenshotCommand returns the OS-specific one-shot screenshot
// command that writes a JPEG to path.
func platformScreenshotCommand(path string) *exec.Cmd {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("screencapture", "-x", "-t", "jpg", path)
	case "linux":
		return exec.Command("import", "-window", "root", path)
	default:
		return nil
	}
}

// Capture takes a screenshot for sessionID and publishes
// screenshot.captured on success or screenshot.error on failure.
func (s *ScreenshotCapture) Capture(ctx context.Context, sessionID int64) {
	path, width, height, err := s.captureToFile()
	if err != nil {
		s.bus.Publish("screenshot.error", map[string]any{
			"session_id": sessionID,
			"error":      err.Error(),
		}, eventbus.HIGH)
		return
	}

	info, statErr := os.Stat(path)
	var size int64
	if statErr == nil {
		size = info.Size()
	}

	s.bus.Publish("screenshot.captured", map[string]any{
		"session_id": sessionID,
		"image_path": path,
		"width":      width,
		"height":     height,
		"size_bytes": size,
		"mime_type":  "image/jpeg",
	}, eventbus.HIGH)
}

func (s *ScreenshotCapture) captureToFile() (path string, width, height int, err error) {
	if err := os.MkdirAll(s.cacheDir, 0o755); err != nil {
		return "", 0, 0, err
	}
	path = filepath.Join(s.cacheDir, fmt.Sprintf("shot_%d.jpg", time.Now().UnixMilli()))

	cmd := s.command(path)
	if cmd == nil {
		return "", 0, 0, fmt.Errorf("no screenshot command available for %s", runtime.GOOS)
	}
	if err := cmd.Run(); err != nil {
		return "", 0, 0, err
	}
	if _, err := os.Stat(path); err != nil {
		return "", 0, 0, err
	}
	// Dimensions are not probed (that would require decoding the JPEG
	// header): width and height are always 0, so §4.8's optional
	// screen_info is omitted from the request.
	return path, 0, 0, nil
}

// CleanupOld removes cached screenshots older than ScreenshotTTL,
// matching _cleanup_old_screenshots's mtime-based reap.
func (s *ScreenshotCapture) CleanupOld() {
	entries, err := os.ReadDir(s.cacheDir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-ScreenshotTTL)
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || info.IsDir() {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(s.cacheDir, e.Name()))
		}
	}
}
