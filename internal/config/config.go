// Package config loads NRG Watch settings from defaults, an optional config
// file, a .env file, NRG_* environment variables and command line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lowaak/nrg-watch/internal/tracker"
)

const envPrefix = "NRG"

// Sensor source names accepted by sensors.source.
const (
	SourceMock = "mock"
	SourceBLE  = "ble"
	SourceFit  = "fit"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Policy  PolicyConfig  `mapstructure:"policy"`
	Session SessionConfig `mapstructure:"session"`
	Profile ProfileConfig `mapstructure:"profile"`
	Sensors SensorsConfig `mapstructure:"sensors"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Store   StoreConfig   `mapstructure:"store"`
	Log     LogConfig     `mapstructure:"log"`
}

type PolicyConfig struct {
	TimeThreshold     time.Duration `mapstructure:"time_threshold"`
	HRVLowThresholdMs float64       `mapstructure:"hrv_low_threshold_ms"`
	MinInterval       time.Duration `mapstructure:"min_interval"`
	TestMode          bool          `mapstructure:"test_mode"`
}

type SessionConfig struct {
	TickInterval       time.Duration `mapstructure:"tick_interval"`
	HoldDuration       time.Duration `mapstructure:"hold_duration"`
	UndoWindow         time.Duration `mapstructure:"undo_window"`
	KeepLastSupplement bool          `mapstructure:"keep_last_supplement"`
}

type ProfileConfig struct {
	RestingVO2              float64 `mapstructure:"resting_vo2"`
	BodyMassKg              float64 `mapstructure:"body_mass_kg"`
	GelCalorieThresholdKcal int     `mapstructure:"gel_calorie_threshold_kcal"`
}

type SensorsConfig struct {
	Source     string  `mapstructure:"source"`
	FitPath    string  `mapstructure:"fit_path"`
	FitSpeedup float64 `mapstructure:"fit_speedup"`
	MockPort   int     `mapstructure:"mock_port"`
	BLEAddress string  `mapstructure:"ble_address"`
	HRVWindow  int     `mapstructure:"hrv_window"`
}

type SyncConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	DeviceID      string `mapstructure:"device_id"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// flag name -> viper key
var flagKeys = map[string]string{
	"source":      "sensors.source",
	"fit":         "sensors.fit_path",
	"fit-speedup": "sensors.fit_speedup",
	"mock-port":   "sensors.mock_port",
	"ble-address": "sensors.ble_address",
	"test-mode":   "policy.test_mode",
	"body-mass":   "profile.body_mass_kg",
	"keep-last":   "session.keep_last_supplement",
	"redis":       "sync.redis_addr",
	"device-id":   "sync.device_id",
	"store":       "store.path",
	"log-file":    "log.file",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("policy.time_threshold", tracker.DefaultTimeSinceGelThreshold)
	v.SetDefault("policy.hrv_low_threshold_ms", tracker.DefaultHRVLowThresholdMs)
	v.SetDefault("policy.min_interval", tracker.DefaultMinGelInterval)
	v.SetDefault("policy.test_mode", false)

	v.SetDefault("session.tick_interval", tracker.DefaultTickInterval)
	v.SetDefault("session.hold_duration", tracker.DefaultHoldDuration)
	v.SetDefault("session.undo_window", tracker.DefaultUndoWindow)
	v.SetDefault("session.keep_last_supplement", false)

	v.SetDefault("profile.resting_vo2", tracker.FallbackRestingVO2)
	v.SetDefault("profile.body_mass_kg", tracker.DefaultBodyMassKg)
	v.SetDefault("profile.gel_calorie_threshold_kcal", tracker.DefaultGelCalorieThresholdKcal)

	v.SetDefault("sensors.source", SourceMock)
	v.SetDefault("sensors.fit_path", "")
	v.SetDefault("sensors.fit_speedup", 1.0)
	v.SetDefault("sensors.mock_port", 8090)
	v.SetDefault("sensors.ble_address", "")
	v.SetDefault("sensors.hrv_window", 30)

	v.SetDefault("sync.redis_addr", "")
	v.SetDefault("sync.redis_password", "")
	v.SetDefault("sync.device_id", "watch")

	v.SetDefault("store.path", defaultDataPath("profile.db"))

	v.SetDefault("log.file", defaultDataPath("nrg-watch.log"))
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
}

func defaultDataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".nrg-watch", name)
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("nrg-watch", pflag.ContinueOnError)
	fs.String("config", "", "path to a config file (yaml, json or toml)")
	fs.String("env-file", ".env", "path to a .env file, ignored when missing")
	fs.String("source", SourceMock, "sensor source: mock, ble or fit")
	fs.String("fit", "", "FIT activity to replay when --source=fit")
	fs.Float64("fit-speedup", 1, "FIT replay speed-up factor")
	fs.Int("mock-port", 8090, "port of the mock runner control API")
	fs.String("ble-address", "", "heart rate strap address")
	fs.Bool("test-mode", false, "raise the time alert after 30 s instead of 45 min")
	fs.Float64("body-mass", tracker.DefaultBodyMassKg, "body mass in kg used on first launch")
	fs.Bool("keep-last", false, "carry the last gel time into the next session")
	fs.String("redis", "", "redis address for the companion channel, empty disables it")
	fs.String("device-id", "watch", "device id used in companion channel names")
	fs.String("store", "", "path of the profile database")
	fs.String("log-file", "", "path of the rotating log file")
	return fs
}

// Load parses args and merges every configuration layer into a Config.
// The result is validated.
func Load(args []string) (Config, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("parse flags: %w", err)
	}

	envFile, _ := fs.GetString("env-file")
	if err := loadEnvFile(envFile); err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadEnvFile exports the variables of a .env file. A missing file is fine;
// variables already set in the environment win.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings the tracker cannot run with.
func (c Config) Validate() error {
	positiveDurations := map[string]time.Duration{
		"policy.time_threshold": c.Policy.TimeThreshold,
		"policy.min_interval":   c.Policy.MinInterval,
		"session.tick_interval": c.Session.TickInterval,
		"session.hold_duration": c.Session.HoldDuration,
		"session.undo_window":   c.Session.UndoWindow,
	}
	for key, d := range positiveDurations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v: %w", key, d, ErrInvalidConfig)
		}
	}
	if c.Policy.HRVLowThresholdMs <= 0 {
		return fmt.Errorf("policy.hrv_low_threshold_ms must be positive: %w", ErrInvalidConfig)
	}
	if c.Profile.GelCalorieThresholdKcal <= 0 {
		return fmt.Errorf("profile.gel_calorie_threshold_kcal must be positive: %w", ErrInvalidConfig)
	}
	if c.Profile.BodyMassKg <= 0 {
		return fmt.Errorf("profile.body_mass_kg must be positive: %w", ErrInvalidConfig)
	}

	switch c.Sensors.Source {
	case SourceMock, SourceBLE:
	case SourceFit:
		if c.Sensors.FitPath == "" {
			return fmt.Errorf("sensors.fit_path is required for the fit source: %w", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("unknown sensors.source %q: %w", c.Sensors.Source, ErrInvalidConfig)
	}
	if c.Sensors.FitSpeedup <= 0 {
		return fmt.Errorf("sensors.fit_speedup must be positive: %w", ErrInvalidConfig)
	}
	if c.Sensors.MockPort <= 0 || c.Sensors.MockPort > 65535 {
		return fmt.Errorf("sensors.mock_port %d out of range: %w", c.Sensors.MockPort, ErrInvalidConfig)
	}
	if c.Sensors.HRVWindow < 2 {
		return fmt.Errorf("sensors.hrv_window needs at least 2 intervals: %w", ErrInvalidConfig)
	}
	return nil
}

// TrackerPolicy returns the policy thresholds, with test mode applied.
func (c Config) TrackerPolicy() tracker.PolicyConfig {
	policy := tracker.PolicyConfig{
		TimeSinceGelThreshold: c.Policy.TimeThreshold,
		HRVLowThresholdMs:     c.Policy.HRVLowThresholdMs,
		MinGelInterval:        c.Policy.MinInterval,
	}
	if c.Policy.TestMode {
		policy.TimeSinceGelThreshold = tracker.TestModeTimeSinceGelThreshold
	}
	return policy
}

// DefaultProfile is the profile saved on first launch.
func (c Config) DefaultProfile() tracker.AthleteProfile {
	return tracker.AthleteProfile{
		RestingVO2MlPerKgPerMin: c.Profile.RestingVO2,
		BodyMassKg:              tracker.ClampBodyMass(c.Profile.BodyMassKg),
		GelCalorieThresholdKcal: c.Profile.GelCalorieThresholdKcal,
	}.WithFallbacks()
}

// ControllerConfig builds the tracker controller settings.
func (c Config) ControllerConfig(clock tracker.Clock) tracker.ControllerConfig {
	return tracker.ControllerConfig{
		Clock:        clock,
		Policy:       c.TrackerPolicy(),
		TickInterval: c.Session.TickInterval,
		HoldDuration: c.Session.HoldDuration,
		UndoWindow:   c.Session.UndoWindow,
		Profile:      c.DefaultProfile(),
	}
}
