// Command halo-server runs the streaming half of halo: it accepts the
// single gRPC StreamAudio RPC described in §6, drives text generation
// and incremental speech synthesis per request, and arbitrates
// concurrent requests for the same hardware_id per §4.8's fairness
// rule.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/haloassist/halo/pkg/config"
	"github.com/haloassist/halo/pkg/interrupt"
	"github.com/haloassist/halo/pkg/memory"
	"github.com/haloassist/halo/pkg/orchestrator"
	"github.com/haloassist/halo/pkg/providers"
	llmProvider "github.com/haloassist/halo/pkg/providers/llm"
	ttsProvider "github.com/haloassist/halo/pkg/providers/tts"
	"github.com/haloassist/halo/pkg/requestorchestrator"
	"github.com/haloassist/halo/pkg/streamworkflow"
	"github.com/haloassist/halo/pkg/telemetry/logger"
	"github.com/haloassist/halo/pkg/telemetry/metrics"
	"github.com/haloassist/halo/pkg/wire"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults to ~/.config/halo/config.yaml)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "halo-server: no .env file found, using system environment variables")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "halo-server: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(os.Stderr, cfg.Server.LogLevel, cfg.Server.LogFormat)

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)
	go serveMetrics(cfg.Server.MetricsAddr, reg, log)

	registry, err := buildInterruptRegistry(cfg)
	if err != nil {
		log.Error("failed to build interrupt registry", "error", err)
		os.Exit(1)
	}

	llm, err := buildLLM(cfg.Providers.LLM)
	if err != nil {
		log.Error("failed to build LLM provider", "error", err)
		os.Exit(1)
	}
	tts, err := buildTTS(cfg.Providers.TTS)
	if err != nil {
		log.Error("failed to build TTS provider", "error", err)
		os.Exit(1)
	}

	mem := buildMemoryCoordinator(cfg, llm, log)

	textAdapter := &providers.TextModelAdapter{LLM: llm}
	speechAdapter := &providers.SpeechAdapter{TTS: tts}

	workflow := streamworkflow.New(streamworkflow.Thresholds{
		MinChars:              cfg.Stream.MinChars,
		MinWords:              cfg.Stream.MinWords,
		FirstSentenceMinWords: cfg.Stream.FirstSentenceMinWords,
		ForceFlushMaxChars:    cfg.Stream.ForceFlushMaxChars,
	}, streamworkflow.NewDefaultFilter(), log)

	orch := requestorchestrator.New(workflow, registry, mem, textAdapter, speechAdapter, log)

	lis, err := net.Listen("tcp", cfg.Server.ListenAddr)
	if err != nil {
		log.Error("failed to listen", "addr", cfg.Server.ListenAddr, "error", err)
		os.Exit(1)
	}

	grpcServer := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    cfg.Network.KeepaliveTime,
			Timeout: cfg.Network.KeepaliveTimeout,
		}),
	)
	desc := wire.ServiceDesc(orch.Handle)
	grpcServer.RegisterService(&desc, nil)

	go func() {
		log.Info("halo-server listening", "addr", cfg.Server.ListenAddr, "interrupt_backend", cfg.Server.InterruptBackend)
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("grpc server stopped", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("halo-server shutting down")
	grpcServer.GracefulStop()
}

func loadConfig(explicitPath string) (*config.Config, error) {
	path := explicitPath
	if path == "" {
		p, err := config.DefaultConfigPath()
		if err != nil {
			return config.Defaults(), nil
		}
		path = p
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

func serveMetrics(addr string, reg *prometheus.Registry, log logger.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.Info("metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("metrics server stopped", "error", err)
	}
}

func buildInterruptRegistry(cfg *config.Config) (interrupt.Registry, error) {
	switch cfg.Server.InterruptBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Server.RedisAddr})
		return interrupt.NewRedisRegistry(client, interrupt.WithRedisTTL(cfg.Server.InterruptTTL)), nil
	default:
		return interrupt.NewMemoryRegistry(cfg.Server.InterruptTTL), nil
	}
}

func buildMemoryCoordinator(cfg *config.Config, llm orchestrator.LLMProvider, log logger.Logger) *memory.Coordinator {
	if cfg.Memory.PostgresDSN == "" {
		return nil
	}
	db, err := memory.OpenPostgresAdapter(cfg.Memory.PostgresDSN)
	if err != nil {
		log.Warn("memory: failed to open postgres adapter, running without long-term memory", "error", err)
		return nil
	}
	return memory.New(db, memory.NewLLMAnalyser(llm), log)
}

func buildLLM(entry config.ProviderEntry) (orchestrator.LLMProvider, error) {
	switch entry.Name {
	case "openai":
		return llmProvider.NewOpenAILLM(entry.APIKey, entry.Model), nil
	case "anthropic":
		return llmProvider.NewAnthropicLLM(entry.APIKey, entry.Model), nil
	case "google":
		return llmProvider.NewGoogleLLM(entry.APIKey, entry.Model), nil
	case "groq", "":
		return llmProvider.NewGroqLLM(entry.APIKey, entry.Model), nil
	default:
		return nil, fmt.Errorf("unknown providers.llm.name %q", entry.Name)
	}
}

func buildTTS(entry config.ProviderEntry) (orchestrator.TTSProvider, error) {
	switch entry.Name {
	case "lokutor", "":
		return ttsProvider.NewLokutorTTS(entry.APIKey), nil
	default:
		return nil, fmt.Errorf("unknown providers.tts.name %q", entry.Name)
	}
}
