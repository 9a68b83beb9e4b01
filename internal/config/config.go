package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"gopkg.in/yaml.v3"

	"pagecal/internal/caldate"
	"pagecal/internal/calview"
	"pagecal/internal/events"
	"pagecal/internal/grid"
	appLog "pagecal/internal/log"
	"pagecal/internal/page"
)

// ICSConfig describes a single ICS subscription.
type ICSConfig struct {
	URL  string `yaml:"url" json:"url"`
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// FeedID is ID, falling back to Name and then URL.
func (c ICSConfig) FeedID() string {
	switch {
	case c.ID != "":
		return c.ID
	case c.Name != "":
		return c.Name
	default:
		return c.URL
	}
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the web surface.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	Listen   string `yaml:"listen" json:"listen"`
	Timezone string `yaml:"timezone" json:"timezone"`
	// WeekStart is "monday" or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`
	LogLevel  string `yaml:"log_level" json:"log_level"`

	// Kind is "month" or "week".
	Kind string `yaml:"kind" json:"kind"`
	// StartDate (YYYY-MM-DD) anchors page 0. Empty means the first day of
	// the current month.
	StartDate string `yaml:"start_date" json:"start_date"`
	Pages     int    `yaml:"pages" json:"pages"`
	MaxRows   int    `yaml:"max_rows" json:"max_rows"`

	AllowsSelection     bool `yaml:"allows_selection" json:"allows_selection"`
	AllowsCaching       bool `yaml:"allows_caching" json:"allows_caching"`
	InvalidatePastDates bool `yaml:"invalidate_past_dates" json:"invalidate_past_dates"`
	SaturdayIsWeekend   bool `yaml:"saturday_is_weekend" json:"saturday_is_weekend"`
	CoalesceRequests    bool `yaml:"coalesce_requests" json:"coalesce_requests"`

	// RefreshCron is a cron schedule (e.g. "*/15 * * * *") on which the
	// event cache is cleared and feeds are refetched. Empty disables it.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	ICS []ICSConfig `yaml:"ics" json:"ics"`
	// Holidays (YYYY-MM-DD) are always marked, without a fetch.
	Holidays []string `yaml:"holidays" json:"holidays"`
	// WeekdayTitles are Sunday-first header symbols.
	WeekdayTitles []string `yaml:"weekday_titles" json:"weekday_titles"`

	CacheDir  string           `yaml:"cache_dir" json:"cache_dir"`
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:          "127.0.0.1:8080",
		Timezone:        "UTC",
		WeekStart:       "monday",
		LogLevel:        "info",
		Kind:            "month",
		Pages:           12,
		MaxRows:         grid.DefaultRows,
		AllowsSelection: true,
		AllowsCaching:   true,
		RefreshCron:     "*/15 * * * *",
		ICS:             []ICSConfig{},
		Holidays:        []string{},
		WeekdayTitles:   append([]string(nil), grid.VeryShortWeekdaySymbols[:]...),
		CacheDir:        "./var/ics-cache",
	}
}

// Normalize fills in missing values so partially written configs still
// load. Values that cannot be interpreted are left for Calendar to reject.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	c.WeekStart = strings.ToLower(strings.TrimSpace(c.WeekStart))
	if c.WeekStart == "" {
		c.WeekStart = d.WeekStart
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	c.Kind = strings.ToLower(strings.TrimSpace(c.Kind))
	if c.Kind == "" {
		c.Kind = d.Kind
	}
	if c.Pages <= 0 {
		c.Pages = d.Pages
	}
	if c.MaxRows <= 0 {
		c.MaxRows = d.MaxRows
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.Holidays == nil {
		c.Holidays = []string{}
	}
	if len(c.WeekdayTitles) != caldate.DaysInWeek {
		c.WeekdayTitles = d.WeekdayTitles
	}
	if c.CacheDir == "" {
		c.CacheDir = d.CacheDir
	}
}

// Calendar is the typed form of the calendar settings.
type Calendar struct {
	Kind     page.Kind
	Pages    int
	Location *time.Location
	Level    appLog.Level
	// Options has no Source, Logger or Now; the caller wires those.
	Options  calview.Options
	Holidays events.DateSet
	Titles   [caldate.DaysInWeek]string
}

// Calendar validates and converts the settings. now supplies the default
// start date.
func (c *Config) Calendar(now time.Time) (Calendar, error) {
	var out Calendar
	var errs []error

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
		loc = time.UTC
	}
	out.Location = loc

	first, err := caldate.ParseWeekStart(c.WeekStart)
	if err != nil {
		errs = append(errs, err)
	}
	kind, err := page.ParseKind(c.Kind)
	if err != nil {
		errs = append(errs, err)
	}
	level, err := appLog.ParseLevel(c.LogLevel)
	if err != nil {
		errs = append(errs, err)
	}

	start := caldate.StartOfMonth(caldate.Of(now.In(loc)))
	if c.StartDate != "" {
		if start, err = caldate.Parse(c.StartDate); err != nil {
			errs = append(errs, fmt.Errorf("start_date: %w", err))
		}
	}

	holidays := make([]civil.Date, 0, len(c.Holidays))
	for _, h := range c.Holidays {
		d, err := caldate.Parse(h)
		if err != nil {
			errs = append(errs, fmt.Errorf("holidays: %w", err))
			continue
		}
		holidays = append(holidays, d)
	}

	if err := errors.Join(errs...); err != nil {
		return Calendar{}, fmt.Errorf("config: %w", err)
	}

	out.Kind = kind
	out.Pages = c.Pages
	out.Level = level
	out.Holidays = events.NewDateSet(holidays...)
	copy(out.Titles[:], c.WeekdayTitles)
	out.Options = calview.Options{
		StartDate:           start,
		Calendar:            caldate.Config{FirstWeekday: first},
		Rows:                c.MaxRows,
		AllowsSelection:     c.AllowsSelection,
		AllowsCaching:       c.AllowsCaching,
		InvalidatePastDates: c.InvalidatePastDates,
		SaturdayIsWeekend:   c.SaturdayIsWeekend,
		Coalesce:            c.CoalesceRequests,
		Location:            loc,
	}
	return out, nil
}

// Load reads the YAML config at path. On first run the defaults are written
// there with 0600 permissions and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config: path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	// Keys missing from the file keep their defaults, booleans included.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	return cfg, nil
}

// Save writes cfg to path atomically (temp file in the same directory, then
// rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config: path is empty")
	}
	if cfg == nil {
		return errors.New("config: nil config")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".pagecal-config-*.tmp")
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
