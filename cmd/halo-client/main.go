// Command halo-client runs the desktop half of halo: push-to-talk audio
// capture, speech recognition, screenshot capture, and playback of the
// server's streamed reply, wired together over the in-process EventBus
// per §4 and §6.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/haloassist/halo/pkg/audio"
	"github.com/haloassist/halo/pkg/config"
	"github.com/haloassist/halo/pkg/eventbus"
	"github.com/haloassist/halo/pkg/grpcclient"
	"github.com/haloassist/halo/pkg/integrations"
	"github.com/haloassist/halo/pkg/mode"
	"github.com/haloassist/halo/pkg/orchestrator"
	sttProvider "github.com/haloassist/halo/pkg/providers/stt"
	"github.com/haloassist/halo/pkg/pushtotalk"
	"github.com/haloassist/halo/pkg/speechrecogniser"
	"github.com/haloassist/halo/pkg/telemetry/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "halo-client: no .env file found, using system environment variables")
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "halo-client: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(os.Stderr, cfg.Server.LogLevel, cfg.Server.LogFormat)
	bus := eventbus.New(busErrorSink{log: log})

	modeCtl := mode.New(bus, mode.Config{})

	capture, err := audio.New(log)
	if err != nil {
		log.Error("failed to open capture device", "error", err)
		os.Exit(1)
	}
	playback, err := audio.NewPlayback(bus, log)
	if err != nil {
		log.Error("failed to open playback device", "error", err)
		os.Exit(1)
	}

	stt, err := buildSTT(cfg.Providers.STT)
	if err != nil {
		log.Error("failed to build STT provider", "error", err)
		os.Exit(1)
	}
	recogniser := speechrecogniser.New(stt)

	cacheDir, err := cacheDirectory()
	if err != nil {
		log.Error("failed to resolve cache directory", "error", err)
		os.Exit(1)
	}
	hardware := integrations.NewHardwareIDProvider(bus, filepath.Join(cacheDir, "hardware_id"))
	screenshot := integrations.NewScreenshotCapture(bus, filepath.Join(cacheDir, "screenshots"))
	network := integrations.NewNetworkProbe(bus, cfg.Integrations.Permissions.CheckInterval, cfg.Network.KeepaliveTimeout)
	keyboard := integrations.NewKeyboardMonitor(bus, integrations.NewTerminalKeySource(), integrations.DefaultLongPressThreshold)

	client := grpcclient.New(bus, log, cfg.Integrations.GrpcClient.Server,
		grpcclient.WithAggregateTimeout(secondsToDuration(cfg.Integrations.GrpcClient.AggregateTimeoutSec)),
		grpcclient.WithNetworkGate(cfg.Integrations.GrpcClient.UseNetworkGate),
	)

	pushtotalk.New(bus, modeCtl, capture, recogniser, screenshot, hardware, defaultLanguages(), log)
	pushtotalk.NewResponseRelay(bus, modeCtl, playback, log)

	if _, err := hardware.Obtain(); err != nil {
		log.Warn("hardware id unavailable", "error", err)
	} else {
		hardware.PublishObtained()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go keyboard.Run(ctx)
	go network.Run(ctx)
	go runCaptureWatchdog(ctx, capture)

	log.Info("halo-client ready", "server", cfg.Integrations.GrpcClient.Server, "activation_key", "space")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("halo-client shutting down")
	cancel()
	_ = client.Close()
	_ = capture.Close()
}

// busErrorSink reports subscriber panics/errors through the logger
// rather than letting a misbehaving handler abort event delivery.
type busErrorSink struct {
	log logger.Logger
}

func (s busErrorSink) HandleBusError(name string, err error) {
	s.log.Error("eventbus subscriber error", "event", name, "error", err)
}

func loadConfig() (*config.Config, error) {
	path, err := config.DefaultConfigPath()
	if err != nil {
		return config.Defaults(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return config.Defaults(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func cacheDirectory() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		u, uerr := user.Current()
		if uerr != nil {
			return "", err
		}
		dir = u.HomeDir
	}
	full := filepath.Join(dir, "halo")
	if err := os.MkdirAll(full, 0o755); err != nil {
		return "", err
	}
	return full, nil
}

func defaultLanguages() []orchestrator.Language {
	return []orchestrator.Language{orchestrator.LanguageEn}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// watchdogInterval is the polling period Capture.Watchdog's own doc
// comment asks its caller to run it at.
const watchdogInterval = 50 * time.Millisecond

// runCaptureWatchdog keeps Capture.Watchdog ticking for the process
// lifetime; it is a no-op while nothing is recording, and only takes
// effect during an active capture session (§4.4's bounded-settle-delay
// hot-swap abort).
func runCaptureWatchdog(ctx context.Context, capture *audio.Capture) {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			capture.Watchdog()
		}
	}
}

func buildSTT(entry config.ProviderEntry) (speechrecogniser.Provider, error) {
	switch entry.Name {
	case "openai":
		return sttProvider.NewOpenAISTT(entry.APIKey, entry.Model), nil
	case "deepgram":
		return sttProvider.NewDeepgramSTT(entry.APIKey), nil
	case "assemblyai":
		return sttProvider.NewAssemblyAISTT(entry.APIKey), nil
	case "groq", "":
		return sttProvider.NewGroqSTT(entry.APIKey, entry.Model), nil
	default:
		return nil, fmt.Errorf("unknown providers.stt.name %q", entry.Name)
	}
}
