// Command cadence is the reading-assessment scoring server. It can also
// score a single recording from the command line with -score.
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
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/cadence/internal/advice"
	"github.com/MrWong99/cadence/internal/app"
	"github.com/MrWong99/cadence/internal/config"
	"github.com/MrWong99/cadence/internal/engine"
	"github.com/MrWong99/cadence/internal/engine/cloudspeech"
	"github.com/MrWong99/cadence/internal/engine/forced"
	"github.com/MrWong99/cadence/internal/engine/heuristic"
	"github.com/MrWong99/cadence/internal/engine/judge"
	"github.com/MrWong99/cadence/internal/observe"
	"github.com/MrWong99/cadence/internal/pipeline"
	"github.com/MrWong99/cadence/internal/router"
	"github.com/MrWong99/cadence/internal/store"
	"github.com/MrWong99/cadence/internal/store/postgres"
	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/provider/asr"
	"github.com/MrWong99/cadence/pkg/provider/asr/whisper"
	"github.com/MrWong99/cadence/pkg/provider/llm"
	"github.com/MrWong99/cadence/pkg/provider/llm/anyllm"
	"github.com/MrWong99/cadence/pkg/provider/llm/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	scorePath := flag.String("score", "", "score a single WAV file, print the result JSON, and exit; the script is the first positional argument (or stdin)")
	engineFlag := flag.String("engine", "", "pin a scoring engine instead of letting the router choose")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "cadence: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "cadence: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	if *engineFlag != "" && !engine.Kind(*engineFlag).Known() {
		slog.Error("unknown engine", "engine", *engineFlag)
		return 1
	}

	otelShutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName: "cadence",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	asrProvider, err := buildASR(cfg)
	if err != nil {
		slog.Error("failed to create speech recogniser", "err", err)
		return 1
	}
	if asrProvider != nil {
		defer asrProvider.Close()
	}

	llmProvider, err := buildLLM(cfg)
	if err != nil {
		slog.Error("failed to create judge language model", "err", err)
		return 1
	}
	if llmProvider != nil {
		defer llmProvider.Close()
	}

	registry, err := buildEngines(cfg, asrProvider, llmProvider)
	if err != nil {
		slog.Error("failed to build scoring engines", "err", err)
		return 1
	}
	defer func() {
		if err := registry.Close(); err != nil {
			slog.Warn("engine close error", "err", err)
		}
	}()
	slog.Info("scoring engines ready", "engines", registry.Kinds())

	p := pipeline.New(
		newRouter(cfg, registry),
		pipeline.WithAdvisor(newAdvisor(cfg, llmProvider)),
	)

	if *scorePath != "" {
		return scoreOnce(ctx, p, *scorePath, *engineFlag, cfg.ASR.Language)
	}

	st, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open submission store", "err", err)
		return 1
	}
	defer closeStore()

	application := app.New(appConfig(cfg), st, p)

	slog.Info("cadence starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"workers", cfg.Workers.Count,
	)
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// scoreOnce decodes one WAV file, scores it against the script, and prints
// the result document to stdout.
func scoreOnce(ctx context.Context, p *pipeline.Pipeline, path, engineKind, language string) int {
	script := strings.Join(flag.Args(), " ")
	if strings.TrimSpace(script) == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			slog.Error("read script from stdin", "err", err)
			return 1
		}
		script = string(data)
	}
	if strings.TrimSpace(script) == "" {
		fmt.Fprintln(os.Stderr, "cadence: -score needs the reference script as an argument or on stdin")
		return 1
	}

	f, err := os.Open(path)
	if err != nil {
		slog.Error("open audio", "err", err)
		return 1
	}
	defer f.Close()
	clip, err := audio.DecodeWAV(f)
	if err != nil {
		slog.Error("decode audio", "err", err)
		return 1
	}

	res := p.ProcessClip(ctx, &store.Submission{
		ID:       "local",
		Script:   script,
		Language: language,
		Engine:   engineKind,
	}, clip)

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		slog.Error("encode result", "err", err)
		return 1
	}
	fmt.Println(string(out))
	if res.Error != "" {
		return 1
	}
	return 0
}

// buildASR creates the local whisper recogniser when a model is configured.
func buildASR(cfg *config.Config) (asr.Provider, error) {
	if cfg.ASR.ModelPath == "" {
		slog.Info("no ASR model configured, heuristic engine will synthesise timings")
		return nil, nil
	}
	var opts []whisper.Option
	if cfg.ASR.Language != "" {
		opts = append(opts, whisper.WithLanguage(cfg.ASR.Language))
	}
	p, err := whisper.New(cfg.ASR.ModelPath, opts...)
	if err != nil {
		return nil, err
	}
	slog.Info("whisper recogniser loaded", "model", cfg.ASR.ModelPath)
	return p, nil
}

// buildLLM creates the judge language model provider. The native OpenAI
// client serves "openai"; every other provider goes through any-llm.
func buildLLM(cfg *config.Config) (llm.Provider, error) {
	if cfg.Judge.Provider == "" {
		slog.Info("no judge provider configured, multimodal-judge engine disabled")
		return nil, nil
	}

	if cfg.Judge.Provider == "openai" {
		var opts []openai.Option
		if cfg.Judge.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.Judge.BaseURL))
		}
		return openai.New(cfg.Judge.APIKey, cfg.Judge.Model, opts...)
	}

	var opts []anyllmlib.Option
	if cfg.Judge.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(cfg.Judge.APIKey))
	}
	if cfg.Judge.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(cfg.Judge.BaseURL))
	}
	return anyllm.New(cfg.Judge.Provider, cfg.Judge.Model, opts...)
}

// buildEngines registers every engine the configuration enables. The
// heuristic engine is always present so routing always has a floor.
func buildEngines(cfg *config.Config, asrProvider asr.Provider, llmProvider llm.Provider) (*engine.Registry, error) {
	registry := engine.NewRegistry()

	var heurOpts []heuristic.Option
	if asrProvider != nil {
		heurOpts = append(heurOpts, heuristic.WithASR(asrProvider))
	}
	if err := registry.Register(heuristic.New(heurOpts...)); err != nil {
		return nil, err
	}

	if cfg.Engines.Forced.Endpoint != "" {
		var opts []forced.Option
		if cfg.Scoring.GOPSlope != 0 || cfg.Scoring.GOPCenter != 0 {
			opts = append(opts, forced.WithGOPMapping(cfg.Scoring.GOPSlope, cfg.Scoring.GOPCenter))
		}
		eng, err := forced.New(cfg.Engines.Forced.Endpoint, opts...)
		if err != nil {
			return nil, fmt.Errorf("forced-alignment engine: %w", err)
		}
		if err := registry.Register(eng); err != nil {
			return nil, err
		}
	}

	for _, cloud := range []struct {
		kind engine.Kind
		cfg  config.CloudConfig
	}{
		{engine.KindCloudSpeechA, cfg.Engines.CloudA},
		{engine.KindCloudSpeechB, cfg.Engines.CloudB},
	} {
		if cloud.cfg.Endpoint == "" {
			continue
		}
		eng, err := cloudspeech.New(cloudspeech.Config{
			Kind:     cloud.kind,
			Endpoint: cloud.cfg.Endpoint,
			Keys:     cloud.cfg.Keys,
			Model:    cloud.cfg.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("%s engine: %w", cloud.kind, err)
		}
		if err := registry.Register(eng); err != nil {
			return nil, err
		}
	}

	if asrProvider != nil && llmProvider != nil {
		var opts []judge.Option
		if cfg.Scoring.CalibrationTrigger != 0 || cfg.Scoring.CalibrationTarget != 0 {
			opts = append(opts, judge.WithCalibration(cfg.Scoring.CalibrationTrigger, cfg.Scoring.CalibrationTarget))
		}
		eng, err := judge.New(asrProvider, llmProvider, opts...)
		if err != nil {
			return nil, fmt.Errorf("multimodal-judge engine: %w", err)
		}
		if err := registry.Register(eng); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// newRouter applies the configured engine preference order.
func newRouter(cfg *config.Config, registry *engine.Registry) *router.Router {
	var opts []router.Option
	if cfg.Scoring.RerouteMissingRatio != 0 {
		opts = append(opts, router.WithRerouteThreshold(cfg.Scoring.RerouteMissingRatio))
	}
	if len(cfg.Engines.Preference) > 0 {
		preference := make([]engine.Kind, len(cfg.Engines.Preference))
		for i, name := range cfg.Engines.Preference {
			preference[i] = engine.Kind(name)
		}
		opts = append(opts, router.WithPreference(preference))
	}
	return router.New(registry, opts...)
}

// newAdvisor wires the optional feedback phraser.
func newAdvisor(cfg *config.Config, llmProvider llm.Provider) *advice.Advisor {
	var opts []advice.Option
	if cfg.Judge.PhraseFeedback && llmProvider != nil {
		opts = append(opts, advice.WithPhraser(llmProvider))
	}
	return advice.New(opts...)
}

// buildStore opens the configured submission store: PostgreSQL when a DSN
// is set, in-memory otherwise.
func buildStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	if cfg.Store.DSN == "" {
		slog.Warn("no store DSN configured, submissions are kept in memory only")
		return store.NewMemStore(), func() {}, nil
	}
	pg, err := postgres.New(ctx, cfg.Store.DSN)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("postgres store connected")
	return pg, pg.Close, nil
}

func appConfig(cfg *config.Config) app.Config {
	out := app.Config{
		ListenAddr:   cfg.Server.ListenAddr,
		Workers:      cfg.Workers.Count,
		PollInterval: time.Duration(cfg.Workers.PollInterval) * time.Millisecond,
		AudioDir:     cfg.Server.AudioDir,
	}
	if out.ListenAddr == "" {
		out.ListenAddr = ":8080"
	}
	if out.Workers <= 0 {
		out.Workers = 2
	}
	if out.PollInterval <= 0 {
		out.PollInterval = 500 * time.Millisecond
	}
	if out.AudioDir == "" {
		out.AudioDir = "data/audio"
	}
	return out
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
