// Package config loads application configuration using Viper.
package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/rxtech-lab/fxstream-trading/pkg/errors"
)

type Config struct {
	Instruments  []string           `mapstructure:"instruments" validate:"required,min=1,dive,required"`
	Window       time.Duration      `mapstructure:"window" validate:"required"`
	Indicator    IndicatorConfig    `mapstructure:"indicator"`
	Signal       SignalConfig       `mapstructure:"signal"`
	TradingHours TradingHoursConfig `mapstructure:"trading_hours"`
	Feed         FeedConfig         `mapstructure:"feed"`
	Broker       BrokerConfig       `mapstructure:"broker"`
	Reconnect    ReconnectConfig    `mapstructure:"reconnect"`
	BarLog       BarLogConfig       `mapstructure:"bar_log"`
	Log          LogConfig          `mapstructure:"log"`
}

type IndicatorConfig struct {
	EMAPeriod int `mapstructure:"ema_period" validate:"gt=0"`
	SMAPeriod int `mapstructure:"sma_period" validate:"gt=0"`
	RSIPeriod int `mapstructure:"rsi_period" validate:"gt=0"`
}

type SignalConfig struct {
	RSILower       float64 `mapstructure:"rsi_lower" validate:"gte=0,ltfield=RSIUpper"`
	RSIUpper       float64 `mapstructure:"rsi_upper" validate:"lte=100"`
	Leverage       float64 `mapstructure:"leverage" validate:"gt=0"`
	StopLossPips   float64 `mapstructure:"stop_loss_pips" validate:"gt=0"`
	TakeProfitPips float64 `mapstructure:"take_profit_pips" validate:"gt=0"`
}

// TradingHoursConfig restricts signal evaluation to a day-of-week subset and
// an inclusive local time-of-day range.
type TradingHoursConfig struct {
	Days     []string `mapstructure:"days" validate:"required,min=1"`
	Start    string   `mapstructure:"start" validate:"required"` // "HH:MM"
	End      string   `mapstructure:"end" validate:"required"`   // "HH:MM"
	Timezone string   `mapstructure:"timezone"`
}

type FeedConfig struct {
	StreamURL string        `mapstructure:"stream_url" validate:"required,url"`
	Token     string        `mapstructure:"token"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type BrokerConfig struct {
	BaseURL   string        `mapstructure:"base_url" validate:"required,url"`
	AccountID string        `mapstructure:"account_id" validate:"required"`
	Token     string        `mapstructure:"token"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ReconnectConfig bounds the feed reconnect loop. The policy lives here, not
// in core logic.
type ReconnectConfig struct {
	MaxRetries      uint64        `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

type BarLogConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	OutputDir string `mapstructure:"output_dir"`
}

type LogConfig struct {
	Level string `mapstructure:"level"` // "debug", "info", "warn", "error"
}

// Default returns a Config with the defaults the original deployment used:
// EUR_USD on a 60-second window, RSI(14) 30/70 thresholds, EMA/SMA(10).
func Default() *Config {
	return &Config{
		Instruments: []string{"EUR_USD"},
		Window:      60 * time.Second,
		Indicator: IndicatorConfig{
			EMAPeriod: 10,
			SMAPeriod: 10,
			RSIPeriod: 14,
		},
		Signal: SignalConfig{
			RSILower:       30,
			RSIUpper:       70,
			Leverage:       20,
			StopLossPips:   20,
			TakeProfitPips: 40,
		},
		TradingHours: TradingHoursConfig{
			Days:     []string{"monday", "tuesday", "wednesday", "thursday", "friday"},
			Start:    "07:00",
			End:      "21:00",
			Timezone: "UTC",
		},
		Feed: FeedConfig{
			StreamURL: "https://stream-fxpractice.oanda.com/v3/accounts/{accountID}/pricing/stream",
			Timeout:   30 * time.Second,
		},
		Broker: BrokerConfig{
			BaseURL: "https://api-fxpractice.oanda.com",
			Timeout: 10 * time.Second,
		},
		Reconnect: ReconnectConfig{
			MaxRetries:      5,
			InitialInterval: time.Second,
			MaxInterval:     30 * time.Second,
		},
		BarLog: BarLogConfig{},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads configuration from the given YAML file, overlaying defaults and
// environment variables (dot notation maps to underscores, e.g.
// BROKER_ACCOUNT_ID).
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Support environment variables with dot notation (e.g., BROKER_TOKEN)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to read config", err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to unmarshal config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks structural and semantic constraints.
func (c *Config) Validate() error {
	validate := validator.New()

	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid configuration", err)
	}

	if c.Window <= 0 {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "window must be positive, got %s", c.Window)
	}

	for _, day := range c.TradingHours.Days {
		if _, ok := weekdayNames[strings.ToLower(day)]; !ok {
			return errors.Newf(errors.ErrCodeInvalidTradingWindow, "unknown weekday %q", day)
		}
	}

	start, err := parseMinuteOfDay(c.TradingHours.Start)
	if err != nil {
		return err
	}

	end, err := parseMinuteOfDay(c.TradingHours.End)
	if err != nil {
		return err
	}

	if start > end {
		return errors.Newf(errors.ErrCodeInvalidTradingWindow,
			"trading window start %s is after end %s", c.TradingHours.Start, c.TradingHours.End)
	}

	return nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Weekdays resolves the configured day names.
func (t TradingHoursConfig) Weekdays() []time.Weekday {
	days := make([]time.Weekday, 0, len(t.Days))
	for _, name := range t.Days {
		if day, ok := weekdayNames[strings.ToLower(name)]; ok {
			days = append(days, day)
		}
	}

	return days
}

// parseMinuteOfDay parses "HH:MM" into minutes since midnight.
func parseMinuteOfDay(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrCodeInvalidTradingWindow, err, "invalid time of day %q", s)
	}

	return t.Hour()*60 + t.Minute(), nil
}
