// Package config loads the hashboard controller's configuration from a
// .env file plus environment-variable overrides, keeping the teacher's
// internal/config/config.go load/override/memoize shape but replacing
// its single DeviceConfig{IP,Password,Username} with the chain/monitor/
// pool settings this daemon actually needs.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config is the daemon's full runtime configuration.
type Config struct {
	ExpectedChips  int
	MidstateCount  uint
	InitialFreqHz  uint64
	VoltageMv      uint16
	AsicDifficulty uint32
	BaseClockHz    uint64
	BaseClockDiv   uint64
	FPGAFreqHz     uint64

	DangerousTempC       float64
	HotTempC             float64
	MinFans              int
	TargetTempC          float64
	FanKp                float64
	FanKi                float64
	FanKd                float64
	FansOnWhileWarmingUp bool

	PoolURL      string
	PoolUser     string
	PoolPassword string

	APIAddr string
}

// Defaults mirrors the values spec.md's named-constants table gives
// for an S9-class chain.
func Defaults() Config {
	return Config{
		ExpectedChips:  63,
		MidstateCount:  1,
		InitialFreqHz:  650_000_000,
		VoltageMv:      850,
		AsicDifficulty: 256,
		BaseClockHz:    25_000_000,
		BaseClockDiv:   8,
		FPGAFreqHz:     650_000_000,
		DangerousTempC:       105,
		HotTempC:             95,
		MinFans:              1,
		TargetTempC:          75,
		FanKp:                2.5,
		FanKi:                0.5,
		FanKd:                0.1,
		FansOnWhileWarmingUp: true,
		APIAddr:              ":8080",
	}
}

var (
	loaded  *Config
	didLoad bool
)

// Load reads .env from the project root (if present) over the
// defaults, then applies environment-variable overrides, and memoizes
// the result, matching the teacher's LoadDeviceConfig semantics.
func Load() (*Config, error) {
	if loaded != nil && didLoad {
		return loaded, nil
	}

	cfg := Defaults()

	envPath := filepath.Join(findProjectRoot(), ".env")
	if data, err := os.ReadFile(envPath); err == nil {
		parseEnvFile(string(data), &cfg)
	}
	applyEnvOverrides(&cfg)

	loaded = &cfg
	didLoad = true
	return loaded, nil
}

func parseEnvFile(content string, cfg *Config) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		setField(cfg, strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
	}
}

func applyEnvOverrides(cfg *Config) {
	for _, key := range []string{
		"EXPECTED_CHIPS", "MIDSTATE_COUNT", "INITIAL_FREQ_HZ", "VOLTAGE_MV",
		"ASIC_DIFFICULTY", "BASE_CLOCK_HZ", "BASE_CLOCK_DIV", "FPGA_FREQ_HZ",
		"DANGEROUS_TEMP_C", "HOT_TEMP_C", "MIN_FANS",
		"TARGET_TEMP_C", "FAN_KP", "FAN_KI", "FAN_KD", "FANS_ON_WHILE_WARMING_UP",
		"POOL_URL", "POOL_USER", "POOL_PASSWORD", "API_ADDR",
	} {
		if v := os.Getenv(key); v != "" {
			setField(cfg, key, v)
		}
	}
}

func setField(cfg *Config, key, value string) {
	switch key {
	case "EXPECTED_CHIPS":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.ExpectedChips = n
		}
	case "MIDSTATE_COUNT":
		if n, err := strconv.ParseUint(value, 10, 32); err == nil {
			cfg.MidstateCount = uint(n)
		}
	case "INITIAL_FREQ_HZ":
		if n, err := strconv.ParseUint(value, 10, 64); err == nil {
			cfg.InitialFreqHz = n
		}
	case "VOLTAGE_MV":
		if n, err := strconv.ParseUint(value, 10, 16); err == nil {
			cfg.VoltageMv = uint16(n)
		}
	case "ASIC_DIFFICULTY":
		if n, err := strconv.ParseUint(value, 10, 32); err == nil {
			cfg.AsicDifficulty = uint32(n)
		}
	case "BASE_CLOCK_HZ":
		if n, err := strconv.ParseUint(value, 10, 64); err == nil {
			cfg.BaseClockHz = n
		}
	case "BASE_CLOCK_DIV":
		if n, err := strconv.ParseUint(value, 10, 64); err == nil {
			cfg.BaseClockDiv = n
		}
	case "FPGA_FREQ_HZ":
		if n, err := strconv.ParseUint(value, 10, 64); err == nil {
			cfg.FPGAFreqHz = n
		}
	case "DANGEROUS_TEMP_C":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			cfg.DangerousTempC = f
		}
	case "HOT_TEMP_C":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			cfg.HotTempC = f
		}
	case "MIN_FANS":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.MinFans = n
		}
	case "TARGET_TEMP_C":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			cfg.TargetTempC = f
		}
	case "FAN_KP":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			cfg.FanKp = f
		}
	case "FAN_KI":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			cfg.FanKi = f
		}
	case "FAN_KD":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			cfg.FanKd = f
		}
	case "FANS_ON_WHILE_WARMING_UP":
		if b, err := strconv.ParseBool(value); err == nil {
			cfg.FansOnWhileWarmingUp = b
		}
	case "POOL_URL":
		cfg.PoolURL = value
	case "POOL_USER":
		cfg.PoolUser = value
	case "POOL_PASSWORD":
		cfg.PoolPassword = value
	case "API_ADDR":
		cfg.APIAddr = value
	}
}

func findProjectRoot() string {
	cwd, _ := os.Getwd()
	if _, err := os.Stat(filepath.Join(cwd, ".env")); err == nil {
		return cwd
	}
	for {
		if _, err := os.Stat(filepath.Join(cwd, "go.mod")); err == nil {
			return cwd
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return cwd
		}
		cwd = parent
	}
}
