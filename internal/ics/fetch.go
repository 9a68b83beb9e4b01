package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	appLog "pagecal/internal/log"
)

// Feed is one ICS subscription.
type Feed struct {
	ID  string
	URL string
}

// Body is a fetched ICS payload.
type Body struct {
	Feed      Feed
	Data      []byte
	FromCache bool // reused the disk copy (304 or upstream failure)
}

type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads feeds with conditional requests and keeps the last good
// body on disk, one directory per URL.
type Fetcher struct {
	client   *http.Client
	cacheDir string
	log      *appLog.Logger
}

// NewFetcher returns a Fetcher caching under cacheDir. A nil client gets a
// 15s timeout client.
func NewFetcher(cacheDir string, client *http.Client, logger *appLog.Logger) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cacheDir: cacheDir, log: logger}
}

// Fetch downloads feed, sending If-None-Match / If-Modified-Since from the
// previous response. A 304 or any upstream failure falls back to the cached
// body when there is one.
func (f *Fetcher) Fetch(ctx context.Context, feed Feed) (Body, error) {
	if feed.URL == "" {
		return Body{}, fmt.Errorf("ics: feed %q has no url", feed.ID)
	}
	dir := f.dirFor(feed.URL)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Body{}, fmt.Errorf("ics: cache dir: %w", err)
	}
	meta, _ := readMeta(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, "body.ics"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return Body{}, fmt.Errorf("ics: build request: %w", err)
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	f.log.Debug("ics fetch start", "id", feed.ID, "url", redactURL(feed.URL))
	resp, err := f.client.Do(req)
	if err != nil {
		if len(cached) > 0 && ctx.Err() == nil {
			f.log.Error("ics fetch failed, using cached body", err, "id", feed.ID, "url", redactURL(feed.URL))
			return Body{Feed: feed, Data: cached, FromCache: true}, nil
		}
		return Body{}, fmt.Errorf("ics: fetch %s: %w", feed.ID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return Body{}, fmt.Errorf("ics: read %s: %w", feed.ID, err)
		}
		next := cacheMeta{
			URL:          feed.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := writeCache(dir, next, data); err != nil {
			f.log.Error("ics cache save failed", err, "id", feed.ID)
		}
		f.log.Info("ics fetch success", "id", feed.ID, "url", redactURL(feed.URL), "bytes", len(data))
		return Body{Feed: feed, Data: data}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return Body{}, fmt.Errorf("ics: %s: not modified but nothing cached", feed.ID)
		}
		f.log.Debug("ics not modified", "id", feed.ID)
		return Body{Feed: feed, Data: cached, FromCache: true}, nil

	default:
		status := errors.New(resp.Status)
		if len(cached) > 0 {
			f.log.Error("ics fetch non-OK, using cached body", status, "id", feed.ID, "status", resp.StatusCode)
			return Body{Feed: feed, Data: cached, FromCache: true}, nil
		}
		return Body{}, fmt.Errorf("ics: fetch %s: %w", feed.ID, status)
	}
}

func (f *Fetcher) dirFor(u string) string {
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func readMeta(dir string) (cacheMeta, error) {
	var meta cacheMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(data, &meta)
	return meta, err
}

// writeCache writes the body before the metadata so meta never points at a
// missing body.
func writeCache(dir string, meta cacheMeta, body []byte) error {
	if err := os.WriteFile(filepath.Join(dir, "body.ics"), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o600)
}

// redactURL keeps scheme and host only; subscription paths often carry
// private tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
