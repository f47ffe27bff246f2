// Package config loads placer configuration from the
// environment. An optional .env file in the working directory
// is read first; variables already set in the environment win.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/jrife/placement/cost"
	"github.com/jrife/placement/reload"
)

// ErrConfiguration is returned when configuration is missing
// or malformed
var ErrConfiguration = errors.New("invalid configuration")

// Config is the complete placer configuration
type Config struct {
	HistoryPath      string
	ModelPath        string
	ScalerPath       string
	MetaPath         string
	PredictorCommand []string

	PollInterval time.Duration
	Debounce     time.Duration
	Fingerprint  reload.FingerprintMode

	HistoryRows  int
	FixedStep    time.Duration
	TickInterval time.Duration
	MaxTicks     int
	InitBackoff  time.Duration

	SelfAddress  string
	TopologyPath string
	CostVariant  cost.Variant

	DecisionLogPath string
	MetricsLogPath  string
	Sink            string

	Transport          string
	LocalRoot          string
	SnapshotPath       string
	RemoteSnapshotPath string
	SCPUser            string
	SCPPort            int
	SCPKey             string
	ClientPort         int

	MetricsAddr string
	Debug       bool
}

// Load reads .env if present and then the environment
func Load() (Config, error) {
	godotenv.Load()

	return LoadFrom(os.Getenv)
}

// LoadFrom builds a configuration from getenv, applying
// defaults for unset variables, and validates it
func LoadFrom(getenv func(string) string) (Config, error) {
	env := environment{getenv: getenv}

	config := Config{
		HistoryPath:      env.String("PLACER_HISTORY_PATH", "raft_stats.csv"),
		ModelPath:        env.String("PLACER_MODEL_PATH", "model.h5"),
		ScalerPath:       env.String("PLACER_SCALER_PATH", "scaler.pkl"),
		MetaPath:         env.String("PLACER_META_PATH", "meta.json"),
		PredictorCommand: strings.Fields(env.String("PLACER_PREDICTOR_CMD", "python3 predict.py")),

		PollInterval: env.Duration("PLACER_POLL_INTERVAL", 15*time.Second),
		Debounce:     env.Duration("PLACER_DEBOUNCE", 5*time.Second),

		HistoryRows:  env.Int("PLACER_HISTORY_ROWS", 30),
		FixedStep:    env.Duration("PLACER_FIXED_STEP", 0),
		TickInterval: env.Duration("PLACER_TICK_INTERVAL", 15*time.Second),
		MaxTicks:     env.Int("PLACER_MAX_TICKS", 0),
		InitBackoff:  env.Duration("PLACER_INIT_BACKOFF", 30*time.Second),

		SelfAddress:  env.String("PLACER_SELF_ADDRESS", ""),
		TopologyPath: env.String("PLACER_TOPOLOGY_PATH", "topology.yaml"),

		DecisionLogPath: env.String("PLACER_DECISION_LOG", "logs/predicted_leader.csv"),
		MetricsLogPath:  env.String("PLACER_METRICS_LOG", "logs/migration_metrics.csv"),
		Sink:            env.String("PLACER_SINK", "csv"),

		Transport:          env.String("PLACER_TRANSPORT", "scp"),
		LocalRoot:          env.String("PLACER_LOCAL_ROOT", ""),
		SnapshotPath:       env.String("PLACER_SNAPSHOT_PATH", ""),
		RemoteSnapshotPath: env.String("PLACER_REMOTE_SNAPSHOT_PATH", ""),
		SCPUser:            env.String("PLACER_SCP_USER", "root"),
		SCPPort:            env.Int("PLACER_SCP_PORT", 22),
		SCPKey:             env.String("PLACER_SCP_KEY", ""),
		ClientPort:         env.Int("PLACER_CLIENT_PORT", 2379),

		MetricsAddr: env.String("PLACER_METRICS_ADDR", ""),
		Debug:       env.Bool("PLACER_DEBUG", false),
	}

	if config.SnapshotPath == "" {
		config.SnapshotPath = config.HistoryPath
	}

	if mode, err := reload.ParseFingerprintMode(env.String("PLACER_FINGERPRINT", "mtime")); err != nil {
		env.fail("PLACER_FINGERPRINT", err)
	} else {
		config.Fingerprint = mode
	}

	if variant, err := cost.ParseVariant(env.String("PLACER_COST_VARIANT", "quorum")); err != nil {
		env.fail("PLACER_COST_VARIANT", err)
	} else {
		config.CostVariant = variant
	}

	if len(env.errs) > 0 {
		return config, fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(env.errs, "; "))
	}

	if err := config.Validate(); err != nil {
		return config, err
	}

	return config, nil
}

// Validate checks that the configuration is usable
func (config Config) Validate() error {
	problems := []string{}

	for name, path := range map[string]string{
		"history path":  config.HistoryPath,
		"model path":    config.ModelPath,
		"scaler path":   config.ScalerPath,
		"meta path":     config.MetaPath,
		"topology path": config.TopologyPath,
		"decision log":  config.DecisionLogPath,
		"metrics log":   config.MetricsLogPath,
		"snapshot path": config.SnapshotPath,
	} {
		if path == "" {
			problems = append(problems, name+" is required")
		}
	}

	if len(config.PredictorCommand) == 0 {
		problems = append(problems, "predictor command is required")
	}

	if config.PollInterval <= 0 || config.TickInterval <= 0 {
		problems = append(problems, "poll and tick intervals must be positive")
	}

	if config.Debounce < 0 || config.FixedStep < 0 || config.InitBackoff < 0 {
		problems = append(problems, "debounce, fixed step and init backoff must not be negative")
	}

	if config.HistoryRows <= 0 {
		problems = append(problems, "history rows must be positive")
	}

	if config.MaxTicks < 0 {
		problems = append(problems, "max ticks must not be negative")
	}

	if config.ClientPort <= 0 || config.ClientPort > 65535 || config.SCPPort <= 0 || config.SCPPort > 65535 {
		problems = append(problems, "ports must be between 1 and 65535")
	}

	if config.Sink != "csv" && config.Sink != "bbolt" {
		problems = append(problems, "sink must be csv or bbolt")
	}

	if config.Transport != "scp" && config.Transport != "local" {
		problems = append(problems, "transport must be scp or local")
	}

	if config.SelfAddress != "" && net.ParseIP(config.SelfAddress) == nil {
		problems = append(problems, "self address must be an IP address")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
	}

	return nil
}

// DetectSelfAddress returns the local address used to reach
// the network. No packet is sent.
func DetectSelfAddress() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")

	if err != nil {
		return "", fmt.Errorf("%w: could not detect local address: %s", ErrConfiguration, err.Error())
	}

	defer conn.Close()

	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}

type environment struct {
	getenv func(string) string
	errs   []string
}

func (env *environment) fail(key string, err error) {
	env.errs = append(env.errs, key+": "+err.Error())
}

func (env *environment) String(key string, def string) string {
	if value := env.getenv(key); value != "" {
		return value
	}

	return def
}

func (env *environment) Int(key string, def int) int {
	value := env.getenv(key)

	if value == "" {
		return def
	}

	i, err := strconv.Atoi(value)

	if err != nil {
		env.fail(key, err)

		return def
	}

	return i
}

// Duration accepts Go durations such as "15s" and bare
// numbers, which are read as seconds
func (env *environment) Duration(key string, def time.Duration) time.Duration {
	value := env.getenv(key)

	if value == "" {
		return def
	}

	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}

	d, err := time.ParseDuration(value)

	if err != nil {
		env.fail(key, err)

		return def
	}

	return d
}

func (env *environment) Bool(key string, def bool) bool {
	value := env.getenv(key)

	if value == "" {
		return def
	}

	b, err := strconv.ParseBool(value)

	if err != nil {
		env.fail(key, err)

		return def
	}

	return b
}
