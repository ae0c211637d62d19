// Package config loads server-wide tunables from defaults, an optional
// orthrus.ini file, and ORTHRUS_* environment variables, in that order —
// the same three-layer precedence cheetah-db's config.go uses.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds every deployment-wide tunable: wire protocol field widths,
// log buffer sizing, redundancy-runner behavior, and CPU affinity hints.
type Config struct {
	ListenAddr string // base address; group i binds port+i
	NGroups    int

	KeyLen int
	ValLen int

	BucketCount int // C5 bucket count, power of two

	RingCapacity      int // C3 SPSC ring capacity, power of two
	MaxLogBufferSize  int64 // C1 slab size, power of two
	MinLogBufferSize  int64

	Synchronous       bool    // C4 synchronous validation mode
	SamplingRate      float64 // C4 async sampling rate, 0..1
	ConcurrencyLimit  int     // C4 gate; 0 = unlimited

	MetricsAddr string

	WorkCPUSet       string
	ValidationCPUSet string
}

func defaultConfig() Config {
	return Config{
		ListenAddr:       "0.0.0.0:11211",
		NGroups:          3,
		KeyLen:           4,
		ValLen:           8,
		BucketCount:      1 << 24,
		RingCapacity:     1 << 12,
		MaxLogBufferSize: 1 << 20,
		MinLogBufferSize: 1 << 8,
		Synchronous:      false,
		SamplingRate:     1.0,
		ConcurrencyLimit: 0,
		MetricsAddr:      "",
	}
}

// Load applies the three-layer precedence and validates the result.
func Load() (*Config, error) {
	cfg := defaultConfig()

	path := strings.TrimSpace(os.Getenv("ORTHRUS_CONFIG_PATH"))
	if path == "" {
		path = "orthrus.ini"
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if f, err := os.Open(path); err == nil {
		defer f.Close()
		parseFile(bufio.NewScanner(f), &cfg)
	}

	applyEnv(&cfg)
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseFile(scanner *bufio.Scanner, cfg *Config) {
	section := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.ToLower(strings.TrimSpace(line[1 : len(line)-1]))
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		assign(section, strings.ToLower(strings.TrimSpace(key)), strings.TrimSpace(val), cfg)
	}
}

func assign(section, key, val string, cfg *Config) {
	switch section {
	case "", "server":
		switch key {
		case "listen_addr":
			setStr(&cfg.ListenAddr, val)
		case "ngroups":
			setInt(&cfg.NGroups, val)
		case "metrics_addr":
			setStr(&cfg.MetricsAddr, val)
		}
	case "protocol":
		switch key {
		case "key_len":
			setInt(&cfg.KeyLen, val)
		case "val_len":
			setInt(&cfg.ValLen, val)
		}
	case "kv":
		if key == "bucket_count" {
			setInt(&cfg.BucketCount, val)
		}
	case "redundancy":
		switch key {
		case "synchronous":
			setBool(&cfg.Synchronous, val)
		case "sampling_rate":
			setFloat(&cfg.SamplingRate, val)
		case "concurrency_limit":
			setInt(&cfg.ConcurrencyLimit, val)
		case "ring_capacity":
			setInt(&cfg.RingCapacity, val)
		case "max_log_buffer_size":
			setInt64(&cfg.MaxLogBufferSize, val)
		case "min_log_buffer_size":
			setInt64(&cfg.MinLogBufferSize, val)
		}
	}
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("ORTHRUS_LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("ORTHRUS_NGROUPS")); v != "" {
		setInt(&cfg.NGroups, v)
	}
	if v := strings.TrimSpace(os.Getenv("ORTHRUS_KEY_LEN")); v != "" {
		setInt(&cfg.KeyLen, v)
	}
	if v := strings.TrimSpace(os.Getenv("ORTHRUS_VAL_LEN")); v != "" {
		setInt(&cfg.ValLen, v)
	}
	if v := strings.TrimSpace(os.Getenv("ORTHRUS_BUCKET_COUNT")); v != "" {
		setInt(&cfg.BucketCount, v)
	}
	if v := strings.TrimSpace(os.Getenv("ORTHRUS_SYNCHRONOUS")); v != "" {
		setBool(&cfg.Synchronous, v)
	}
	if v := strings.TrimSpace(os.Getenv("ORTHRUS_SAMPLING_RATE")); v != "" {
		setFloat(&cfg.SamplingRate, v)
	}
	if v := strings.TrimSpace(os.Getenv("ORTHRUS_CONCURRENCY_LIMIT")); v != "" {
		setInt(&cfg.ConcurrencyLimit, v)
	}
	if v := strings.TrimSpace(os.Getenv("ORTHRUS_METRICS_ADDR")); v != "" {
		cfg.MetricsAddr = v
	}
	cfg.WorkCPUSet = os.Getenv("SCEE_WORK_CPUSET")
	cfg.ValidationCPUSet = os.Getenv("SCEE_VALIDATION_CPUSET")
}

func (cfg *Config) normalize() error {
	if cfg.NGroups <= 0 {
		cfg.NGroups = 3
	}
	if cfg.KeyLen <= 0 || cfg.ValLen <= 0 {
		return fmt.Errorf("config: key_len and val_len must be positive")
	}
	if cfg.BucketCount <= 0 || cfg.BucketCount&(cfg.BucketCount-1) != 0 {
		return fmt.Errorf("config: bucket_count must be a power of two")
	}
	if cfg.RingCapacity <= 0 || cfg.RingCapacity&(cfg.RingCapacity-1) != 0 {
		return fmt.Errorf("config: ring_capacity must be a power of two")
	}
	if cfg.MaxLogBufferSize <= 0 || cfg.MaxLogBufferSize&(cfg.MaxLogBufferSize-1) != 0 {
		return fmt.Errorf("config: max_log_buffer_size must be a power of two")
	}
	if cfg.MinLogBufferSize <= 0 || cfg.MinLogBufferSize > cfg.MaxLogBufferSize {
		return fmt.Errorf("config: min_log_buffer_size must be positive and <= max_log_buffer_size")
	}
	if cfg.SamplingRate < 0 || cfg.SamplingRate > 1 {
		return fmt.Errorf("config: sampling_rate must be in [0,1]")
	}
	if cfg.Synchronous && cfg.SamplingRate != 1.0 {
		return fmt.Errorf("config: sampling is mutually exclusive with synchronous mode")
	}
	if cfg.ConcurrencyLimit < 0 {
		cfg.ConcurrencyLimit = 0
	}
	return nil
}

func setStr(dst *string, val string) {
	if val != "" {
		*dst = val
	}
}

func setInt(dst *int, val string) {
	if n, err := strconv.Atoi(val); err == nil {
		*dst = n
	}
}

func setInt64(dst *int64, val string) {
	if n, err := strconv.ParseInt(val, 10, 64); err == nil {
		*dst = n
	}
}

func setBool(dst *bool, val string) {
	if b, err := strconv.ParseBool(val); err == nil {
		*dst = b
	}
}

func setFloat(dst *float64, val string) {
	if f, err := strconv.ParseFloat(val, 64); err == nil {
		*dst = f
	}
}
