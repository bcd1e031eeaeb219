package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config stores runtime configuration for the desktop app and the server.
type Config struct {
	Camera    CameraConfig    `mapstructure:"camera"`
	Detection DetectionConfig `mapstructure:"detection"`
	Labels    LabelsConfig    `mapstructure:"labels"`
	Speech    SpeechConfig    `mapstructure:"speech"`
	Phrasing  PhrasingConfig  `mapstructure:"phrasing"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
}

type CameraConfig struct {
	Command     string `mapstructure:"command"`
	InputFormat string `mapstructure:"input_format"`
	FrontDevice string `mapstructure:"front_device"`
	BackDevice  string `mapstructure:"back_device"`
	Width       int    `mapstructure:"width"`
	Height      int    `mapstructure:"height"`
	FrameRate   int    `mapstructure:"frame_rate"`
}

type DetectionConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	AppendDelay time.Duration `mapstructure:"append_delay"`
}

type LabelsConfig struct {
	Source    string `mapstructure:"source"`
	RemoteURL string `mapstructure:"remote_url"`
}

type SpeechConfig struct {
	TranslateURL    string        `mapstructure:"translate_url"`
	TTSURL          string        `mapstructure:"tts_url"`
	DefaultLanguage string        `mapstructure:"default_language"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

type PhrasingConfig struct {
	Path           string `mapstructure:"path"`
	IterationLimit int    `mapstructure:"iteration_limit"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	TLS            bool     `mapstructure:"tls"`
	CertDir        string   `mapstructure:"cert_dir"`
	Preview        bool     `mapstructure:"preview"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	LabelSourceRandom = "random"
	LabelSourceRemote = "remote"
)

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string][]string{
	"camera.command":           {"SIGNSPEAK_FFMPEG_COMMAND"},
	"camera.input_format":      {"SIGNSPEAK_CAMERA_INPUT_FORMAT"},
	"camera.front_device":      {"SIGNSPEAK_CAMERA_FRONT_DEVICE"},
	"camera.back_device":       {"SIGNSPEAK_CAMERA_BACK_DEVICE"},
	"camera.width":             {"SIGNSPEAK_CAMERA_WIDTH"},
	"camera.height":            {"SIGNSPEAK_CAMERA_HEIGHT"},
	"camera.frame_rate":        {"SIGNSPEAK_CAMERA_FRAME_RATE"},
	"detection.interval":       {"SIGNSPEAK_DETECTION_INTERVAL"},
	"detection.append_delay":   {"SIGNSPEAK_DETECTION_APPEND_DELAY"},
	"labels.source":            {"SIGNSPEAK_LABEL_SOURCE"},
	"labels.remote_url":        {"SIGNSPEAK_LABEL_SOURCE_URL"},
	"speech.translate_url":     {"SIGNSPEAK_TRANSLATE_URL"},
	"speech.tts_url":           {"SIGNSPEAK_TTS_URL"},
	"speech.default_language":  {"SIGNSPEAK_SPEECH_LANGUAGE"},
	"speech.timeout":           {"SIGNSPEAK_SPEECH_TIMEOUT"},
	"phrasing.path":            {"SIGNSPEAK_PHRASING_FILE"},
	"phrasing.iteration_limit": {"SIGNSPEAK_PHRASING_ITERATION_LIMIT"},
	"server.addr":              {"SIGNSPEAK_SERVER_ADDR"},
	"server.allowed_origins":   {"SIGNSPEAK_ALLOWED_ORIGINS"},
	"server.tls":               {"SIGNSPEAK_TLS"},
	"server.cert_dir":          {"SIGNSPEAK_CERT_DIR"},
	"server.preview":           {"SIGNSPEAK_SERVER_PREVIEW"},
	"log.level":                {"SIGNSPEAK_LOG_LEVEL"},
	"log.format":               {"SIGNSPEAK_LOG_FORMAT"},
}

var (
	intKeys      = []string{"camera.width", "camera.height", "camera.frame_rate", "phrasing.iteration_limit"}
	durationKeys = []string{"detection.interval", "detection.append_delay", "speech.timeout"}
	boolKeys     = []string{"server.tls", "server.preview"}
)

// Load resolves configuration from an optional file named by SIGNSPEAK_CONFIG,
// environment variables and defaults. Malformed numeric and boolean values
// fall back to their defaults.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	v := viper.New()
	setDefaults(v, home)
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path := strings.TrimSpace(os.Getenv("SIGNSPEAK_CONFIG")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	sanitize(v)

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	applyFallbacks(&cfg)
	return cfg, nil
}

func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("camera.command", "ffmpeg")
	v.SetDefault("camera.input_format", "v4l2")
	v.SetDefault("camera.front_device", "/dev/video0")
	v.SetDefault("camera.back_device", "/dev/video2")
	v.SetDefault("camera.width", 1280)
	v.SetDefault("camera.height", 720)
	v.SetDefault("camera.frame_rate", 15)
	v.SetDefault("detection.interval", 3*time.Second)
	v.SetDefault("detection.append_delay", 500*time.Millisecond)
	v.SetDefault("labels.source", LabelSourceRandom)
	v.SetDefault("labels.remote_url", "")
	v.SetDefault("speech.translate_url", "https://translate.googleapis.com")
	v.SetDefault("speech.tts_url", "https://translate.google.com")
	v.SetDefault("speech.default_language", "Hindi")
	v.SetDefault("speech.timeout", 10*time.Second)
	v.SetDefault("phrasing.path", filepath.Join(home, ".config", "signspeak", "phrasing.rules"))
	v.SetDefault("phrasing.iteration_limit", 30)
	v.SetDefault("server.addr", "0.0.0.0:8000")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173", "http://127.0.0.1:5173"})
	v.SetDefault("server.tls", false)
	v.SetDefault("server.cert_dir", filepath.Join(home, ".config", "signspeak", "certs"))
	v.SetDefault("server.preview", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// sanitize replaces unparseable overrides with the registered default so a
// typo in one variable does not prevent start-up.
func sanitize(v *viper.Viper) {
	defaults := viper.New()
	setDefaults(defaults, "")

	for _, key := range intKeys {
		raw, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			v.Set(key, defaults.Get(key))
			continue
		}
		v.Set(key, parsed)
	}
	for _, key := range durationKeys {
		raw, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil || parsed < 0 {
			v.Set(key, defaults.Get(key))
			continue
		}
		v.Set(key, parsed)
	}
	for _, key := range boolKeys {
		raw, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "1", "true", "yes", "on":
			v.Set(key, true)
		case "0", "false", "no", "off":
			v.Set(key, false)
		default:
			v.Set(key, defaults.Get(key))
		}
	}
}

func applyFallbacks(cfg *Config) {
	if cfg.Camera.Width <= 0 {
		cfg.Camera.Width = 1280
	}
	if cfg.Camera.Height <= 0 {
		cfg.Camera.Height = 720
	}
	if cfg.Camera.FrameRate <= 0 {
		cfg.Camera.FrameRate = 15
	}
	if cfg.Detection.Interval <= 0 {
		cfg.Detection.Interval = 3 * time.Second
	}
	if cfg.Detection.AppendDelay < 0 {
		cfg.Detection.AppendDelay = 500 * time.Millisecond
	}
	if cfg.Speech.Timeout <= 0 {
		cfg.Speech.Timeout = 10 * time.Second
	}
	if cfg.Phrasing.IterationLimit <= 0 {
		cfg.Phrasing.IterationLimit = 30
	}

	cfg.Labels.Source = strings.ToLower(strings.TrimSpace(cfg.Labels.Source))
	if cfg.Labels.Source != LabelSourceRemote {
		cfg.Labels.Source = LabelSourceRandom
	}

	origins := make([]string, 0, len(cfg.Server.AllowedOrigins))
	for _, origin := range cfg.Server.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	cfg.Server.AllowedOrigins = origins
}
