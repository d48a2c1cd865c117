package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"

	tiktok "github.com/RavensCloud/tiktok-scrape"
	"github.com/RavensCloud/tiktok-scrape/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	kind       string
	input      string
	limit      int
	cursor     int64
	configPath string
	proxy      string
	browser    bool
	format     string
	verbose    bool
}

// envelope is the output document for json and yaml formats.
type envelope struct {
	Success bool           `json:"success" yaml:"success"`
	Data    *tiktok.Result `json:"data,omitempty" yaml:"data,omitempty"`
	Error   string         `json:"error,omitempty" yaml:"error,omitempty"`
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var opts options
	fs := flag.NewFlagSet("tiktok", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.kind, "kind", "", "What to scrape: "+kindList())
	fs.StringVar(&opts.input, "input", "", "Username, hashtag, music id, keyword, post id or post URL (not used by trend)")
	fs.IntVar(&opts.limit, "limit", tiktok.DefaultLimit, "Max records to return")
	fs.Int64Var(&opts.cursor, "cursor", 0, "Start cursor for search and comments")
	fs.StringVar(&opts.configPath, "config", "", "Path to YAML config (default $"+config.EnvPath+")")
	fs.StringVar(&opts.proxy, "proxy", "", "Proxy URL (http/https/socks5)")
	fs.BoolVar(&opts.browser, "browser", false, "Render pages in headless Chrome instead of plain HTTP")
	fs.StringVar(&opts.format, "format", "json", "Output format: json, yaml or text")
	fs.BoolVar(&opts.verbose, "v", false, "Log scrape progress at debug level")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if opts.kind == "" {
		fmt.Fprintln(stderr, "usage: tiktok -kind <"+kindList()+"> [-input <value>] [-limit n] [-format json|yaml|text]")
		return 2
	}
	switch opts.format {
	case "json", "yaml", "text":
	default:
		fmt.Fprintf(stderr, "unknown format %q\n", opts.format)
		return 2
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fail(stdout, stderr, opts.format, fmt.Errorf("load config: %w", err))
	}
	if opts.proxy != "" {
		cfg.Fetch.Proxy = opts.proxy
	}
	if opts.browser {
		cfg.Fetch.Browser = true
	}

	logger, err := newLogger(cfg, opts.verbose, stderr)
	if err != nil {
		return fail(stdout, stderr, opts.format, err)
	}

	kind, err := tiktok.ParseKind(opts.kind)
	if err != nil {
		return fail(stdout, stderr, opts.format, err)
	}
	req := tiktok.Request{Kind: kind, Input: opts.input, Limit: opts.limit, Cursor: opts.cursor}
	if err := req.Validate(); err != nil {
		return fail(stdout, stderr, opts.format, err)
	}

	s, err := newScraper(cfg, logger)
	if err != nil {
		return fail(stdout, stderr, opts.format, err)
	}
	defer s.Close()

	res, err := s.Scrape(ctx, req)
	if err != nil {
		return fail(stdout, stderr, opts.format, err)
	}
	if err := write(stdout, opts.format, envelope{Success: true, Data: res}); err != nil {
		fmt.Fprintf(stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

func newScraper(cfg *config.Config, logger *slog.Logger) (*tiktok.Scraper, error) {
	strategies, err := cfg.Strategies()
	if err != nil {
		return nil, err
	}

	var fetcher tiktok.Fetcher
	if cfg.Fetch.Browser {
		bf := tiktok.NewBrowserFetcher(cfg.FetchConfig())
		if err := bf.Launch(); err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		fetcher = bf
	} else {
		hf, err := tiktok.NewHTTPFetcher(cfg.FetchConfig())
		if err != nil {
			return nil, fmt.Errorf("create fetcher: %w", err)
		}
		fetcher = hf
	}

	s := tiktok.New().
		WithFetcher(fetcher).
		WithHook(tiktok.SlogHook(logger)).
		WithDeadline(cfg.Scrape.Deadline).
		WithStrategies(strategies...)
	if cfg.Scrape.BaseURL != "" {
		s = s.WithBaseURL(cfg.Scrape.BaseURL)
	}
	return s, nil
}

func newLogger(cfg *config.Config, verbose bool, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// fail reports err in the requested format and returns the exit status.
func fail(stdout, stderr io.Writer, format string, err error) int {
	if format == "text" {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if werr := write(stdout, format, envelope{Error: err.Error()}); werr != nil {
		fmt.Fprintf(stderr, "error: %v\n", errors.Join(err, werr))
	}
	return 1
}

func write(w io.Writer, format string, env envelope) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(env); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		return writeText(w, env.Data)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(env)
	}
}

func writeText(w io.Writer, res *tiktok.Result) error {
	for i, r := range res.Records {
		var line string
		switch v := r.(type) {
		case *tiktok.VideoItem:
			handle := ""
			if v.Author != nil {
				handle = " by @" + v.Author.Handle
			}
			plays := int64(0)
			if v.Stats != nil {
				plays = v.Stats.Plays
			}
			line = fmt.Sprintf("video %s%s, %d plays: %s", v.ID, handle, plays, oneLine(v.Description))
		case *tiktok.UserProfile:
			line = fmt.Sprintf("user @%s (%s), %d followers, %d videos", v.Handle, v.ID, v.FollowerCount, v.VideoCount)
		case *tiktok.Comment:
			nick := ""
			if v.Author != nil {
				nick = v.Author.Nickname
			}
			line = fmt.Sprintf("comment by %s, %d likes: %s", nick, v.LikeCount, oneLine(v.Text))
		case *tiktok.MarkupItem:
			line = fmt.Sprintf("markup %s %s: %s", v.ID, v.URL, oneLine(v.Title))
		}
		if _, err := fmt.Fprintf(w, "[%d] %s\n", i+1, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "\nTotal: %d records (strategy %s)\n", len(res.Records), res.Strategy)
	if err == nil && res.HasMore {
		_, err = fmt.Fprintf(w, "Next cursor: %d\n", res.Cursor)
	}
	return err
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func kindList() string {
	names := make([]string, 0, len(tiktok.Kinds()))
	for _, k := range tiktok.Kinds() {
		names = append(names, string(k))
	}
	return strings.Join(names, "|")
}
