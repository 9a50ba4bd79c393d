package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix namespaces environment overrides.
const EnvPrefix = "OPTGATE_"

// ApplyEnv overlays OPTGATE_* settings onto cfg. Values come from the process environment first and
// then from the given dotenv files (".env" when none are named); missing files are skipped.
func ApplyEnv(cfg *Config, files ...string) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if len(files) == 0 {
		files = []string{".env"}
	}
	fileVals := map[string]string{}
	for _, f := range files {
		vals, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}
		for k, v := range vals {
			if _, seen := fileVals[k]; !seen {
				fileVals[k] = v
			}
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			return v, true
		}
		v, ok := fileVals[EnvPrefix+key]
		return v, ok
	}

	var errs []error
	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	setFloat := func(key string, dst *float64) {
		if v, ok := lookup(key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	setInt := func(key string, dst *int64) {
		if v, ok := lookup(key); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}

	setString("LOG_LEVEL", &cfg.App.LogLevel)
	setString("METRICS_ADDR", &cfg.App.MetricsAddr)
	setString("STRATEGY", &cfg.Strategy.Mode)
	setString("FEED_PROVIDER", &cfg.Feed.Provider)
	setFloat("CAPITAL", &cfg.Session.Capital)
	setFloat("MAX_VAR", &cfg.Risk.MaxVaR)
	setFloat("MAX_DRAWDOWN", &cfg.Risk.MaxDrawdown)
	setInt("MAX_POSITION_SIZE", &cfg.Risk.MaxPositionSize)
	setFloat("MAX_AGGREGATE_EXPOSURE", &cfg.Risk.MaxAggregateExposure)
	setFloat("MAX_TRADE_RISK_PERCENT", &cfg.Risk.MaxTradeRiskPercent)
	setInt("SEED", &cfg.Feed.Seed)
	return errors.Join(errs...)
}
