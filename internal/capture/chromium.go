// Package capture screenshots the /calendar page with headless Chromium.
package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Viewport defaults sized for a month page with six week rows.
const (
	DefaultWidth   = 960
	DefaultHeight  = 720
	DefaultTimeout = 30 * time.Second
)

// ReadySelector matches the root the calendar page marks once rendered.
const ReadySelector = `[data-ready="true"]`

var (
	ErrNoURL    = errors.New("capture: URL is required")
	ErrNoOutput = errors.New("capture: OutputPath is required")
)

// Options configure one screenshot.
type Options struct {
	// URL is the page to load, e.g. "http://127.0.0.1:8080/calendar?index=2".
	URL string
	// OutputPath receives the PNG.
	OutputPath string
	// Width and Height are the viewport in pixels.
	Width  int
	Height int
	// Timeout bounds the whole capture.
	Timeout time.Duration
	// Username and Password are sent as HTTP Basic Auth when both are set.
	Username string
	Password string
}

func (o Options) withDefaults() (Options, error) {
	if o.URL == "" {
		return o, ErrNoURL
	}
	if o.OutputPath == "" {
		return o, ErrNoOutput
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o, nil
}

func (o Options) authHeader() (string, bool) {
	if o.Username == "" || o.Password == "" {
		return "", false
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(o.Username+":"+o.Password)), true
}

func tasks(o Options, png *[]byte) chromedp.Tasks {
	var t chromedp.Tasks
	if auth, ok := o.authHeader(); ok {
		t = append(t,
			network.Enable(),
			network.SetExtraHTTPHeaders(network.Headers{"Authorization": auth}),
		)
	}
	return append(t,
		chromedp.EmulateViewport(int64(o.Width), int64(o.Height)),
		chromedp.Navigate(o.URL),
		chromedp.WaitVisible(ReadySelector, chromedp.ByQuery),
		// Let the last paint land.
		chromedp.Sleep(250 * time.Millisecond),
		chromedp.FullScreenshot(png, 100),
	)
}

// CapturePagePNG loads opts.URL, waits for ReadySelector and writes a full
// page PNG to opts.OutputPath. The file is replaced atomically so the web
// preview never serves a partial image.
func CapturePagePNG(parent context.Context, opts Options) error {
	opts, err := opts.withDefaults()
	if err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parent)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	if err := chromedp.Run(ctx, tasks(opts, &png)); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	return writeFile(opts.OutputPath, png)
}

func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("capture: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".preview-*.png")
	if err != nil {
		return fmt.Errorf("capture: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("capture: write PNG: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("capture: close PNG: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("capture: chmod PNG: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("capture: rename PNG: %w", err)
	}
	return nil
}
