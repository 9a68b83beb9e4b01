package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/civil"

	"pagecal/internal/capture"
	"pagecal/internal/calview"
	"pagecal/internal/config"
	"pagecal/internal/events"
	"pagecal/internal/ics"
	appLog "pagecal/internal/log"
	"pagecal/internal/page"
	"pagecal/internal/schedule"
	"pagecal/internal/tui"
	"pagecal/internal/web"
)

type flagConfig struct {
	configPath  string
	listen      string
	tui         bool
	capturePath string
	once        bool
	logFile     string
}

func main() {
	flags := parseFlags()
	if err := run(flags); err != nil {
		appLog.Error("pagecal failed", err)
		os.Exit(1)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.tui, "tui", false, "Run the terminal UI instead of the HTTP server")
	flag.StringVar(&cfg.capturePath, "capture", "", "Screenshot /calendar to this PNG after every refresh")
	flag.BoolVar(&cfg.once, "once", false, "Resolve the current page, print or capture it, and exit")
	flag.StringVar(&cfg.logFile, "log-file", "", "Write logs here instead of stderr (useful with -tui)")

	flag.Parse()
	return cfg
}

func run(flags flagConfig) error {
	conf, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	cal, err := conf.Calendar(time.Now())
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(flags, cal.Level)
	if err != nil {
		return err
	}
	defer closeLog()

	logger.Info("effective config",
		"listen", conf.Listen,
		"timezone", cal.Location,
		"kind", cal.Kind,
		"start_date", cal.Options.StartDate,
		"pages", cal.Pages,
		"ics_count", len(conf.ICS),
		"holidays", len(cal.Holidays),
		"refresh", conf.RefreshCron,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var days *ics.DaySource
	if len(conf.ICS) > 0 {
		feeds := make([]ics.Feed, 0, len(conf.ICS))
		for _, c := range conf.ICS {
			feeds = append(feeds, ics.Feed{ID: c.FeedID(), URL: c.URL})
		}
		client := &http.Client{Timeout: 30 * time.Second}
		fetcher := ics.NewFetcher(conf.CacheDir, client, logger.With("component", "ics"))
		days = ics.NewDaySource(fetcher, feeds, cal.Location, logger.With("component", "ics"))
	}

	opts := cal.Options
	opts.Source = source(days, cal.Holidays)
	opts.Logger = logger

	coord, err := newCoordinator(cal, opts, selectionLog{logger})
	if err != nil {
		return err
	}
	defer coord.Close()

	refresh := []schedule.Step{
		{Name: "invalidate", Run: func(context.Context) error {
			if days != nil {
				days.Invalidate()
			}
			return nil
		}},
		{Name: "reload", Run: func(context.Context) error {
			coord.Refresh()
			return nil
		}},
	}

	switch {
	case flags.tui:
		return runTUI(ctx, conf, coord, cal, refresh, logger)
	case flags.once && flags.capturePath == "":
		return printOnce(coord, cal, logger)
	default:
		return runServer(ctx, flags, conf, coord, cal, refresh, logger)
	}
}

func newLogger(flags flagConfig, level appLog.Level) (*appLog.Logger, func(), error) {
	if flags.logFile == "" {
		if flags.tui {
			return appLog.New(io.Discard, level), func() {}, nil
		}
		appLog.SetLevel(level)
		return appLog.Default(), func() {}, nil
	}
	f, err := os.OpenFile(flags.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return appLog.New(f, level), func() { _ = f.Close() }, nil
}

// source marks holidays on every page, whether or not the feeds answer.
func source(days *ics.DaySource, holidays events.DateSet) events.Source {
	var src events.Source
	if days != nil {
		src.Async = days
	}
	if len(holidays) > 0 {
		src.Fixed = holidays
	}
	return src
}

func newCoordinator(cal config.Calendar, opts calview.Options, l selectionLog) (*calview.Coordinator, error) {
	if cal.Kind == page.Week {
		return calview.NewWeek(opts, cal.Pages, l)
	}
	return calview.NewMonth(opts, cal.Pages, l)
}

func runTUI(ctx context.Context, conf *config.Config, coord *calview.Coordinator, cal config.Calendar, refresh []schedule.Step, logger *appLog.Logger) error {
	if err := startRefresher(ctx, conf, cal, refresh, logger); err != nil {
		return err
	}
	return tui.Run(ctx, coord, cal.Titles, logger.With("surface", "tui"))
}

// printOnce resolves the page containing today and prints it as text.
func printOnce(coord *calview.Coordinator, cal config.Calendar, logger *appLog.Logger) error {
	m := tui.New(coord, cal.Titles, logger)
	waitResolved(coord, 30*time.Second)
	_, err := fmt.Fprint(os.Stdout, m.View())
	return err
}

func runServer(ctx context.Context, flags flagConfig, conf *config.Config, coord *calview.Coordinator, cal config.Calendar, refresh []schedule.Step, logger *appLog.Logger) error {
	wopts := web.Options{
		Titles:      cal.Titles,
		PreviewPath: flags.capturePath,
		Logger:      logger.With("surface", "web"),
	}
	if conf.BasicAuth != nil {
		wopts.Username = conf.BasicAuth.Username
		wopts.Password = conf.BasicAuth.Password
	}
	srv := web.New(coord, wopts)

	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(serveCtx, conf.Listen) }()

	if flags.capturePath != "" {
		shot := func(ctx context.Context) error {
			waitResolved(coord, 30*time.Second)
			return capture.CapturePagePNG(ctx, capture.Options{
				URL:        "http://" + conf.Listen + "/calendar",
				OutputPath: flags.capturePath,
				Username:   wopts.Username,
				Password:   wopts.Password,
			})
		}
		if flags.once {
			if err := waitHealthy(ctx, conf.Listen, 5*time.Second); err != nil {
				return err
			}
			err := shot(ctx)
			if err == nil {
				logger.Info("capture written", "path", flags.capturePath)
			}
			stopServe()
			<-errCh
			return err
		}
		refresh = append(refresh, schedule.Step{Name: "capture", Run: shot})
		go func() {
			if err := waitHealthy(ctx, conf.Listen, 5*time.Second); err != nil {
				return
			}
			if err := shot(ctx); err != nil {
				logger.Error("initial capture failed", err, "path", flags.capturePath)
			}
		}()
	}

	if err := startRefresher(ctx, conf, cal, refresh, logger); err != nil {
		return err
	}

	err := <-errCh
	logger.Info("pagecal exiting")
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func startRefresher(ctx context.Context, conf *config.Config, cal config.Calendar, steps []schedule.Step, logger *appLog.Logger) error {
	if conf.RefreshCron == "" {
		logger.Info("refresh schedule disabled")
		return nil
	}
	r, err := schedule.New(conf.RefreshCron, cal.Location, logger.With("component", "schedule"), steps...)
	if err != nil {
		return err
	}
	r.Start(ctx)
	return nil
}

// waitResolved lets outstanding fetches land, bounded by limit.
func waitResolved(coord *calview.Coordinator, limit time.Duration) {
	done := make(chan struct{})
	go func() {
		coord.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(limit):
	}
}

// waitHealthy polls /health until the listener is up.
func waitHealthy(ctx context.Context, addr string, limit time.Duration) error {
	deadline := time.Now().Add(limit)
	for {
		resp, err := http.Get("http://" + addr + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("server not healthy after %s", limit)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

type selectionLog struct{ l *appLog.Logger }

func (s selectionLog) MonthSelectionChanged(d civil.Date, index int, marked bool) {
	s.l.Info("month selection changed", "date", d, "page", index, "marked", marked)
}

func (s selectionLog) WeekSelectionChanged(d civil.Date, index int, marked bool) {
	s.l.Info("week selection changed", "date", d, "page", index, "marked", marked)
}
