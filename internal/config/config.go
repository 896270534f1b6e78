package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	Bucket      string
	Region      string
	S3Endpoint  string // optional, for MinIO/localstack
	S3PathStyle bool
	S3AccessKey string // optional static credentials for custom endpoints
	S3SecretKey string

	RawPrefix  string
	RefPrefix  string
	ProcPrefix string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	FetchConcurrency int
	ResultCacheTTL   time.Duration

	Calibration Calibration

	// Synthetic book generation (cmd/makebook).
	TargetHomeTIV float64

	// Run-completion notification (feature-flagged via KAFKA_BROKERS /
	// KAFKA_NOTIFY_ENABLED).
	KafkaBrokers       []string
	KafkaSinkTopic     string
	KafkaNotifyEnabled bool
}

// Calibration holds the fixed loss-model constants. They are plain
// configuration: passed into the model at construction, never read from
// globals, so concurrent runs and tests can use different values.
type Calibration struct {
	KWind        float64 // wind sensitivity
	KFlood       float64 // flood sensitivity
	StepCapShare float64 // max loss per step as a share of TIV
	WindNorm     float64 // wind normalization divisor, m/s
	RainNorm     float64 // rain normalization divisor, mm per step
}

// DefaultCalibration returns the production calibration constants.
func DefaultCalibration() Calibration {
	return Calibration{
		KWind:        0.0010,
		KFlood:       0.0005,
		StepCapShare: 0.0002,
		WindNorm:     30.0,
		RainNorm:     75.0,
	}
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	cacheTTL, err := parseDuration("RESULT_CACHE_TTL", "60s")
	if err != nil {
		return nil, err
	}

	fetchConcurrency, err := parseFetchConcurrency()
	if err != nil {
		return nil, err
	}

	cal, err := loadCalibration()
	if err != nil {
		return nil, err
	}

	targetTIV, err := parsePositiveFloat("TARGET_HOME_TIV", 8.0e11)
	if err != nil {
		return nil, err
	}

	brokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))
	notifyEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_NOTIFY_ENABLED"); v != "" {
		notifyEnabled = v == "true"
	}

	cfg := &Config{
		Bucket:      os.Getenv("BUCKET"),
		Region:      envOrDefault("AWS_REGION", "us-east-2"),
		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3PathStyle: os.Getenv("S3_FORCE_PATH_STYLE") == "true",
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),

		RawPrefix:  envOrDefault("RAW_PREFIX", "raw/owm_forecast/"),
		RefPrefix:  envOrDefault("REF_PREFIX", "ref/"),
		ProcPrefix: envOrDefault("PROC_PREFIX", "proc/losses/"),

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		FetchConcurrency: fetchConcurrency,
		ResultCacheTTL:   cacheTTL,

		Calibration:   cal,
		TargetHomeTIV: targetTIV,

		KafkaBrokers:       brokers,
		KafkaSinkTopic:     envOrDefault("KAFKA_SINK_TOPIC", "loss-run-events"),
		KafkaNotifyEnabled: notifyEnabled,
	}

	if cfg.Bucket == "" {
		return nil, errors.New("BUCKET is required")
	}
	if cfg.KafkaNotifyEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_NOTIFY_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

func loadCalibration() (Calibration, error) {
	def := DefaultCalibration()

	kWind, err := parsePositiveFloat("K_WIND", def.KWind)
	if err != nil {
		return Calibration{}, err
	}
	kFlood, err := parsePositiveFloat("K_FLOOD", def.KFlood)
	if err != nil {
		return Calibration{}, err
	}
	capShare, err := parsePositiveFloat("STEP_CAP_SHARE", def.StepCapShare)
	if err != nil {
		return Calibration{}, err
	}
	windNorm, err := parsePositiveFloat("WIND_NORM", def.WindNorm)
	if err != nil {
		return Calibration{}, err
	}
	rainNorm, err := parsePositiveFloat("RAIN_NORM", def.RainNorm)
	if err != nil {
		return Calibration{}, err
	}

	if capShare > 1 {
		return Calibration{}, errors.New("STEP_CAP_SHARE must be at most 1")
	}

	return Calibration{
		KWind:        kWind,
		KFlood:       kFlood,
		StepCapShare: capShare,
		WindNorm:     windNorm,
		RainNorm:     rainNorm,
	}, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}

func parseFetchConcurrency() (int, error) {
	s := os.Getenv("FETCH_CONCURRENCY")
	if s == "" {
		return 8, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 64 {
		return 0, errors.New("FETCH_CONCURRENCY must be between 1 and 64")
	}
	return n, nil
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
