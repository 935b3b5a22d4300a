// Package config defines and loads the single YAML configuration file
// read at client and server startup. All keys have safe defaults; an
// absent file is equivalent to Defaults().
package config

import "time"

// Config is the root configuration structure for halo.
type Config struct {
	Audio        AudioConfig        `yaml:"audio"`
	Network      NetworkConfig      `yaml:"network"`
	Integrations IntegrationsConfig `yaml:"integrations"`
	Stream       StreamConfig       `yaml:"stream"`
	Server       ServerConfig       `yaml:"server"`
	Memory       MemoryConfig       `yaml:"memory"`
	Providers    ProvidersConfig    `yaml:"providers"`
}

// AudioConfig controls capture/playback sample format and device
// switching policy (§4.4, §4.6).
type AudioConfig struct {
	SampleRate   int                `yaml:"sample_rate"`
	Channels     int                `yaml:"channels"`
	Dtype        string             `yaml:"dtype"`
	DeviceSwitch DeviceSwitchConfig `yaml:"device_switch"`
	BluetoothPolicy string          `yaml:"bluetooth_policy"`
}

// DeviceSwitchConfig bounds the settle delay tolerated on device
// hot-swap before capture/playback aborts.
type DeviceSwitchConfig struct {
	SettleMs int `yaml:"settle_ms"`
}

// NetworkConfig holds gRPC keepalive tuning.
type NetworkConfig struct {
	KeepaliveTime    time.Duration `yaml:"keepalive_time"`
	KeepaliveTimeout time.Duration `yaml:"keepalive_timeout"`
}

// IntegrationsConfig groups the client-side adapters named in §6.
type IntegrationsConfig struct {
	GrpcClient   GrpcClientConfig   `yaml:"grpc_client"`
	AudioDevice  AudioDeviceConfig  `yaml:"audio_device"`
	Permissions  PermissionsConfig  `yaml:"permissions"`
}

// GrpcClientConfig configures the client's request aggregation and
// network gating (§4.7).
type GrpcClientConfig struct {
	Server             string        `yaml:"server"`
	AggregateTimeoutSec float64      `yaml:"aggregate_timeout_sec"`
	RequestTimeoutSec  float64       `yaml:"request_timeout_sec"`
	UseNetworkGate     bool          `yaml:"use_network_gate"`
}

// AudioDeviceConfig configures the background device-change monitor.
type AudioDeviceConfig struct {
	AutoSwitchEnabled  bool          `yaml:"auto_switch_enabled"`
	MonitoringInterval time.Duration `yaml:"monitoring_interval"`
	SwitchDelay        time.Duration `yaml:"switch_delay"`
}

// PermissionsConfig configures the OS permission poller.
type PermissionsConfig struct {
	CheckInterval      time.Duration `yaml:"check_interval"`
	AutoOpenPreferences bool         `yaml:"auto_open_preferences"`
	ShowInstructions   bool          `yaml:"show_instructions"`
}

// StreamConfig carries the sentence-aggregation thresholds of §4.9.
type StreamConfig struct {
	MinChars                 int  `yaml:"min_chars"`
	MinWords                 int  `yaml:"min_words"`
	FirstSentenceMinWords    int  `yaml:"first_sentence_min_words"`
	PunctFlushStrict         bool `yaml:"punct_flush_strict"`
	ForceFlushMaxChars       int  `yaml:"force_flush_max_chars"`
}

// ServerConfig holds the server's listen address, logging, metrics, and
// InterruptRegistry/backing-store selection.
type ServerConfig struct {
	ListenAddr       string        `yaml:"listen_addr"`
	LogLevel         string        `yaml:"log_level"`
	LogFormat        string        `yaml:"log_format"`
	MetricsAddr      string        `yaml:"metrics_addr"`
	InterruptBackend string        `yaml:"interrupt_backend"` // "memory" or "redis"
	RedisAddr        string        `yaml:"redis_addr"`
	InterruptTTL     time.Duration `yaml:"interrupt_ttl"`
	MemoryBudget     time.Duration `yaml:"memory_budget"`
}

// MemoryConfig configures the MemoryCoordinator's DatabaseAdapter.
type MemoryConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

// ProvidersConfig selects the external LLM/STT/TTS collaborators by
// name; API keys are resolved from the environment via ${VAR} expansion
// applied at load time, never stored in the YAML file itself.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all
// external provider adapters.
type ProviderEntry struct {
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Defaults returns the configuration in effect when no file is present,
// matching every default named explicitly in §4 and §6.
func Defaults() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
			Dtype:      "int16",
			DeviceSwitch: DeviceSwitchConfig{
				SettleMs: 300,
			},
			BluetoothPolicy: "auto",
		},
		Network: NetworkConfig{
			KeepaliveTime:    30 * time.Second,
			KeepaliveTimeout: 10 * time.Second,
		},
		Integrations: IntegrationsConfig{
			GrpcClient: GrpcClientConfig{
				AggregateTimeoutSec: 1.5,
				RequestTimeoutSec:   30,
				UseNetworkGate:      true,
			},
			AudioDevice: AudioDeviceConfig{
				AutoSwitchEnabled:  true,
				MonitoringInterval: 2 * time.Second,
				SwitchDelay:        300 * time.Millisecond,
			},
			Permissions: PermissionsConfig{
				CheckInterval:       5 * time.Second,
				AutoOpenPreferences: false,
				ShowInstructions:    true,
			},
		},
		Stream: StreamConfig{
			MinChars:              15,
			MinWords:               3,
			FirstSentenceMinWords:  2,
			PunctFlushStrict:       true,
			ForceFlushMaxChars:     0,
		},
		Server: ServerConfig{
			ListenAddr:       ":50051",
			LogLevel:         "info",
			LogFormat:        "text",
			MetricsAddr:      ":9090",
			InterruptBackend: "memory",
			InterruptTTL:     5 * time.Second,
			MemoryBudget:     2 * time.Second,
		},
	}
}
