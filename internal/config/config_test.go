package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/require"

	"pagecal/internal/caldate"
	appLog "pagecal/internal/log"
	"pagecal/internal/page"
)

func TestLoadWritesDefaultsOnFirstRun(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, again)
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
kind: Week
week_start: SUNDAY
pages: 0
weekday_titles: [a, b]
ics:
  - url: https://example.com/a.ics
    name: Team
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "week", cfg.Kind)
	require.Equal(t, "sunday", cfg.WeekStart)
	require.Equal(t, 12, cfg.Pages)
	require.True(t, cfg.AllowsSelection)
	require.True(t, cfg.AllowsCaching)
	require.Len(t, cfg.WeekdayTitles, 7, "a short title list falls back to the default")
	require.Equal(t, "Team", cfg.ICS[0].FeedID())
	require.Equal(t, "https://example.com/a.ics", ICSConfig{URL: "https://example.com/a.ics"}.FeedID())
}

func TestLoadRejectsBadYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pages: [oops"), 0o600))
	_, err := Load(path)
	require.Error(t, err)

	_, err = Load("")
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.StartDate = "2024-01-01"
	cfg.Holidays = []string{"2024-01-01", "2024-12-25"}
	cfg.InvalidatePastDates = true
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file is renamed away")
}

func TestCalendar(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Timezone = "Asia/Seoul"
	cfg.WeekStart = "sunday"
	cfg.StartDate = "2024-01-01"
	cfg.Pages = 3
	cfg.Holidays = []string{"2024-01-01"}
	cfg.LogLevel = "debug"

	cal, err := cfg.Calendar(time.Now())
	require.NoError(t, err)
	require.Equal(t, page.Month, cal.Kind)
	require.Equal(t, 3, cal.Pages)
	require.Equal(t, appLog.LevelDebug, cal.Level)
	require.Equal(t, "Asia/Seoul", cal.Location.String())
	require.Equal(t, civil.Date{Year: 2024, Month: time.January, Day: 1}, cal.Options.StartDate)
	require.Equal(t, caldate.Config{FirstWeekday: time.Sunday}, cal.Options.Calendar)
	require.True(t, cal.Options.AllowsSelection)
	require.Equal(t, "S", cal.Titles[0])
	require.Len(t, cal.Holidays, 1)
}

func TestCalendarDefaultsStartToCurrentMonth(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	now := time.Date(2024, time.May, 31, 23, 30, 0, 0, time.UTC)
	cfg.Timezone = "Asia/Seoul" // already June 1 there
	cal, err := cfg.Calendar(now)
	require.NoError(t, err)
	require.Equal(t, civil.Date{Year: 2024, Month: time.June, Day: 1}, cal.Options.StartDate)
}

func TestCalendarRejectsBadValues(t *testing.T) {
	t.Parallel()

	for name, mutate := range map[string]func(*Config){
		"timezone":   func(c *Config) { c.Timezone = "Mars/Olympus" },
		"week_start": func(c *Config) { c.WeekStart = "friday" },
		"kind":       func(c *Config) { c.Kind = "year" },
		"start_date": func(c *Config) { c.StartDate = "2024-02-30" },
		"holiday":    func(c *Config) { c.Holidays = []string{"soon"} },
		"log_level":  func(c *Config) { c.LogLevel = "loud" },
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			mutate(cfg)
			_, err := cfg.Calendar(time.Now())
			require.Error(t, err)
		})
	}

	cfg := DefaultConfig()
	cfg.StartDate = "2024-02-30"
	_, err := cfg.Calendar(time.Now())
	require.ErrorIs(t, err, caldate.ErrInvalidDate)
}
