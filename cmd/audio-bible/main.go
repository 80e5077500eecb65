// main package for the audio bible reader command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/book-expert/audio-bible/internal/app"
	"github.com/book-expert/audio-bible/internal/cache"
	"github.com/book-expert/audio-bible/internal/config"
	"github.com/book-expert/audio-bible/internal/core"
	"github.com/book-expert/audio-bible/internal/esv"
	"github.com/book-expert/audio-bible/internal/fsutil"
	"github.com/book-expert/audio-bible/internal/history"
	"github.com/book-expert/audio-bible/internal/metrics"
	"github.com/book-expert/audio-bible/internal/objectstore"
	"github.com/book-expert/audio-bible/internal/pipeline"
	"github.com/book-expert/audio-bible/internal/playback"
	"github.com/book-expert/audio-bible/internal/provider"
	"github.com/book-expert/audio-bible/internal/provider/elevenlabs"
	"github.com/book-expert/audio-bible/internal/provider/gemini"
	"github.com/book-expert/audio-bible/internal/provider/hume"
	"github.com/book-expert/audio-bible/internal/provider/openai"
	"github.com/book-expert/audio-bible/internal/settings"
	"github.com/book-expert/logger"
)

// Commands.
const (
	cmdFetch       = "fetch"
	cmdRestore     = "restore"
	cmdGenerate    = "generate"
	cmdGenerateAll = "generate-all"
	cmdPlay        = "play"
	cmdSeek        = "seek"
	cmdHistory     = "history"
	cmdRevisit     = "revisit"
	cmdClear       = "clear-history"
	cmdVoices      = "voices"
	cmdProvider    = "provider"
	cmdVoice       = "voice"
	cmdRate        = "rate"
	cmdPitch       = "pitch"
	cmdKey         = "key"
)

const usage = `usage: audio-bible <command> [args]

  fetch [file]              fetch themed references (file or stdin)
  restore                   show the last fetched groups
  generate <reference>      generate audio for one verse
  generate-all              generate audio for every verse without it
  play <reference>          play a verse (again to stop)
  seek <reference> <0..1>   play a verse from a fraction of its length
  history                   list recently played verses
  revisit <n>               fetch history entry n (1 is newest)
  clear-history             forget played verses
  voices [refresh]          list voices of the current provider
  provider <id>             select gemini, elevenlabs, openai or hume
  voice <id>                select a voice
  rate <0.5..2>             set playback rate
  pitch <-1200..1200>       set pitch in cents
  key <name> <value>        store an API key (esv, gemini, elevenlabs, openai, hume)`

// Error and log messages.
const (
	errFmtArgs          = "%w: %s expects %d argument(s)\n\n%s"
	errFmtUnknown       = "%w: unknown command %q\n\n%s"
	errFmtNumber        = "%w: %q is not a number"
	errFmtHistoryIndex  = "%w: history entry %d does not exist"
	errFmtUnknownCache  = "%w: unknown cache backend %q"
	logFmtMetrics       = "Serving metrics on %s"
	logFmtMetricsFailed = "Metrics server stopped: %v"
	logFmtInitialized   = "audio-bible initialized (cache=%s, provider=%s)"
	logFmtSettingsPath  = "Settings stored at %s"
	shutdownTimeout     = 2 * time.Second
)

var errUsage = errors.New("invalid usage")

// command is a parsed command line.
type command struct {
	name string
	args []string
}

// arity is the number of required arguments and the number of optional ones.
var arity = map[string][2]int{
	cmdFetch:       {0, 1},
	cmdRestore:     {0, 0},
	cmdGenerate:    {1, 0},
	cmdGenerateAll: {0, 0},
	cmdPlay:        {1, 0},
	cmdSeek:        {2, 0},
	cmdHistory:     {0, 0},
	cmdRevisit:     {1, 0},
	cmdClear:       {0, 0},
	cmdVoices:      {0, 1},
	cmdProvider:    {1, 0},
	cmdVoice:       {1, 0},
	cmdRate:        {1, 0},
	cmdPitch:       {1, 0},
	cmdKey:         {2, 0},
}

func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{}, fmt.Errorf("%w\n\n%s", errUsage, usage)
	}

	name := args[0]

	counts, ok := arity[name]
	if !ok {
		return command{}, fmt.Errorf(errFmtUnknown, errUsage, name, usage)
	}

	rest := args[1:]
	if len(rest) < counts[0] || len(rest) > counts[0]+counts[1] {
		return command{}, fmt.Errorf(errFmtArgs, errUsage, name, counts[0], usage)
	}

	return command{name: name, args: rest}, nil
}

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

// runtime holds the wired application and everything that must be released.
type runtime struct {
	app      *app.App
	progress *progressFeed
	closers  []func()
}

func (r *runtime) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	cmd, err := parseCommand(args)
	if err != nil {
		return err
	}

	bootstrapLog, err := setupLogger(os.TempDir(), "audio-bible-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() { _ = bootstrapLog.Close() }()

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, "audio-bible.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := build(ctx, cfg, finalLog)
	if err != nil {
		finalLog.Error("Failed to initialize: %v", err)

		return err
	}
	defer rt.close()

	finalLog.System(logFmtInitialized, cfg.Cache.Backend, rt.app.Preferences().Provider)

	if cmd.name != cmdFetch && cmd.name != cmdRevisit {
		rt.app.Restore(ctx)
	}

	return execute(ctx, rt.app, rt.progress, cmd, stdin, stdout)
}

// build wires stores, providers, the engine and the application context.
func build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*runtime, error) {
	rt := &runtime{progress: newProgressFeed()}

	m := metrics.New()
	if cfg.Metrics.Address != "" {
		rt.closers = append(rt.closers, serveMetrics(cfg.Metrics.Address, m, log))
	}

	store, err := openCache(ctx, cfg, log, rt)
	if err != nil {
		rt.close()

		return nil, err
	}

	prefs, err := settings.Open(cfg.Paths.DataDir, log)
	if err != nil {
		rt.close()

		return nil, err
	}

	log.Info(logFmtSettingsPath, prefs.Path())

	registry := provider.NewRegistry(log,
		gemini.NewClient(cfg.TTS.GeminiBaseURL, cfg.TTS.GeminiModel, cfg.TTSTimeout(),
			prefs.KeyFunc(settings.KEY_GEMINI), log),
		elevenlabs.NewClient(cfg.TTS.ElevenLabsBaseURL, cfg.TTS.ElevenLabsModel, cfg.TTSTimeout(),
			prefs.KeyFunc(settings.KEY_ELEVENLABS), log),
		openai.NewClient(cfg.TTS.OpenAIBaseURL, cfg.TTS.OpenAIModel, cfg.TTSTimeout(),
			prefs.KeyFunc(settings.KEY_OPENAI), log),
		hume.NewClient(prefs.KeyFunc(settings.KEY_HUME)),
	)

	engine, err := playback.NewEngine(playback.Options{
		Output: playback.NewOtoOutput(playback.Format{
			SampleRate: cfg.Playback.DeviceSampleRate,
			Channels:   cfg.Playback.DeviceChannels,
		}),
		Library:       store,
		Listener:      rt.progress.publish,
		Metrics:       m,
		Log:           log,
		FrameInterval: cfg.FrameInterval(),
		Settings:      playback.Settings{Rate: cfg.Playback.Rate, PitchCents: cfg.Playback.PitchCents},
	})
	if err != nil {
		rt.close()

		return nil, err
	}

	rt.closers = append(rt.closers, engine.Stop)

	rt.app = app.New(app.Deps{
		Store:    store,
		Settings: prefs,
		Text:     esv.NewClient(cfg.ESV.BaseURL, cfg.ESVTimeout(), log),
		Registry: registry,
		Pipeline: pipeline.New(registry, store, cfg.TTS.Workers, m, log),
		Engine:   engine,
		Recorder: history.NewRecorder(prefs, nil, log),
		Metrics:  m,
		Log:      log,
	}, settings.Preferences{Provider: core.ProviderID(cfg.TTS.Provider), Voice: cfg.TTS.Voice})

	return rt, nil
}

func openCache(ctx context.Context, cfg *config.Config, log *logger.Logger, rt *runtime) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case config.BACKEND_SQLITE:
		err := fsutil.EnsureDir(cfg.Paths.DataDir)
		if err != nil {
			return nil, err
		}

		store, err := cache.NewSQLiteStore(ctx, cfg.Cache.SQLitePath, log)
		if err != nil {
			return nil, err
		}

		rt.closers = append(rt.closers, func() { _ = store.Close() })

		return store, nil
	case config.BACKEND_NATS:
		conn, err := nats.Connect(cfg.NATS.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: connect to NATS at %s: %w", core.ErrStorage, cfg.NATS.URL, err)
		}

		rt.closers = append(rt.closers, conn.Close)

		jetStream, err := conn.JetStream()
		if err != nil {
			return nil, fmt.Errorf("%w: JetStream context: %w", core.ErrStorage, err)
		}

		objects, err := objectstore.New(jetStream, cfg.NATS.AudioObjectStoreBucket)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrStorage, err)
		}

		return cache.NewDocumentStore(objects, log), nil
	default:
		return nil, fmt.Errorf(errFmtUnknownCache, config.ErrInvalidConfig, cfg.Cache.Backend)
	}
}

func serveMetrics(address string, m *metrics.Metrics, log *logger.Logger) func() {
	registry := prometheus.NewRegistry()
	m.Register(registry)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info(logFmtMetrics, address)

		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(logFmtMetricsFailed, err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		_ = server.Shutdown(ctx)
	}
}

func execute(ctx context.Context, a *app.App, feed *progressFeed, cmd command, stdin io.Reader, out io.Writer) error {
	switch cmd.name {
	case cmdFetch:
		input, err := readInput(cmd.args, stdin)
		if err != nil {
			return err
		}

		groups, err := a.Fetch(ctx, input)
		if err != nil {
			return err
		}

		printGroups(out, groups)
	case cmdRestore:
		printRestore(out, a.LastInput(), a.Groups())
	case cmdGenerate:
		record, err := a.Generate(ctx, cmd.args[0])
		if err != nil {
			return err
		}

		fmt.Fprintln(out, describeVerse(record))
	case cmdGenerateAll:
		for _, result := range a.GenerateAll(ctx) {
			if result.Err != nil {
				fmt.Fprintf(out, "%s: %v\n", result.Reference, result.Err)

				continue
			}

			fmt.Fprintln(out, describeVerse(result.Record))
		}
	case cmdPlay:
		err := a.TogglePlay(ctx, cmd.args[0])
		if err != nil {
			return err
		}

		waitForPlayback(ctx, a, feed, out)
	case cmdSeek:
		fraction, err := parseNumber(cmd.args[1])
		if err != nil {
			return err
		}

		err = a.Seek(ctx, cmd.args[0], fraction)
		if err != nil {
			return err
		}

		waitForPlayback(ctx, a, feed, out)
	case cmdHistory:
		printHistory(out, a.History())
	case cmdRevisit:
		return revisit(ctx, a, cmd.args[0], out)
	case cmdClear:
		a.ClearHistory()
	case cmdVoices:
		return listVoices(ctx, a, cmd.args, out)
	case cmdProvider:
		return a.SetProvider(core.ProviderID(cmd.args[0]))
	case cmdVoice:
		return a.SetVoice(cmd.args[0])
	case cmdRate:
		return setNumber(cmd.args[0], a.SetRate)
	case cmdPitch:
		return setNumber(cmd.args[0], a.SetPitch)
	case cmdKey:
		return a.SetAPIKey(ctx, cmd.args[0], cmd.args[1])
	}

	return nil
}

func readInput(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("read %s: %w", args[0], err)
		}

		return string(data), nil
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}

	return string(data), nil
}

func revisit(ctx context.Context, a *app.App, arg string, out io.Writer) error {
	index, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf(errFmtNumber, core.ErrInput, arg)
	}

	entries := a.History()
	if index < 1 || index > len(entries) {
		return fmt.Errorf(errFmtHistoryIndex, core.ErrInput, index)
	}

	groups, err := a.Revisit(ctx, entries[index-1])
	if err != nil {
		return err
	}

	printGroups(out, groups)

	return nil
}

func listVoices(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	voices := a.Voices()

	if len(args) == 1 {
		refreshed, err := a.RefreshVoices(ctx)
		if err != nil {
			fmt.Fprintf(out, "using built-in voices: %v\n", err)
		}

		voices = refreshed
	}

	current := a.Preferences().Voice
	for _, voice := range voices {
		marker := " "
		if voice.ID == current {
			marker = "*"
		}

		fmt.Fprintf(out, "%s %s\t%s\n", marker, voice.ID, voice.Name)
	}

	return nil
}

func parseNumber(arg string) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
	if err != nil {
		return 0, fmt.Errorf(errFmtNumber, core.ErrInput, arg)
	}

	return value, nil
}

func setNumber(arg string, set func(float64) error) error {
	value, err := parseNumber(arg)
	if err != nil {
		return err
	}

	return set(value)
}

func describeVerse(record cache.VerseRecord) string {
	if !record.HasAudio() {
		return record.Reference
	}

	return fmt.Sprintf("%s  [%s, %s %s]", record.Reference,
		fsutil.FormatTime(record.Audio.DurationSeconds), record.Audio.ProviderID, record.Audio.VoiceLabel)
}

func printGroups(out io.Writer, groups []app.ThemedVerses) {
	for _, group := range groups {
		fmt.Fprintf(out, "# %s\n", group.Theme)

		for _, verse := range group.Verses {
			fmt.Fprintf(out, "  %s\n    %s\n", describeVerse(verse), verse.Text)
		}
	}
}

func printRestore(out io.Writer, lastInput string, groups []app.ThemedVerses) {
	lastInput = strings.TrimSpace(lastInput)
	if lastInput != "" {
		fmt.Fprintln(out, "Last input:")

		for _, line := range strings.Split(lastInput, "\n") {
			fmt.Fprintf(out, "  %s\n", line)
		}

		fmt.Fprintln(out)
	}

	printGroups(out, groups)
}

func printHistory(out io.Writer, entries []history.Entry) {
	for i, entry := range entries {
		played := time.UnixMilli(entry.PlayedAt).Format(time.DateTime)
		fmt.Fprintf(out, "%2d. %s (%s)  %s\n", i+1, entry.Reference, entry.Theme, played)
	}
}

func main() {
	err := run(os.Args[1:], os.Stdin, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audio-bible: %v\n", err)
		os.Exit(1)
	}
}
