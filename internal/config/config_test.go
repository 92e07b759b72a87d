package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/fxstream-trading/pkg/errors"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) writeConfig(content string) string {
	path := filepath.Join(suite.T().TempDir(), "config.yaml")
	suite.Require().NoError(os.WriteFile(path, []byte(content), 0o600))

	return path
}

const validConfig = `
instruments:
  - EUR_USD
  - USD_JPY
window: 60s
signal:
  leverage: 10
  stop_loss_pips: 15
  take_profit_pips: 30
trading_hours:
  days: [monday, tuesday, wednesday, thursday, friday]
  start: "08:00"
  end: "20:00"
  timezone: UTC
feed:
  stream_url: http://localhost:5000/stream
broker:
  base_url: http://localhost:5000
  account_id: 001-001-1234567-001
`

func (suite *ConfigTestSuite) TestLoadValid() {
	cfg, err := Load(suite.writeConfig(validConfig))
	suite.NoError(err)
	suite.Equal([]string{"EUR_USD", "USD_JPY"}, cfg.Instruments)
	suite.Equal(60*time.Second, cfg.Window)
	suite.Equal(10.0, cfg.Signal.Leverage)
	suite.Equal("001-001-1234567-001", cfg.Broker.AccountID)

	// Defaults survive a partial file.
	suite.Equal(14, cfg.Indicator.RSIPeriod)
	suite.Equal(30.0, cfg.Signal.RSILower)
	suite.Equal(70.0, cfg.Signal.RSIUpper)
}

func (suite *ConfigTestSuite) TestLoadMissingFile() {
	_, err := Load(filepath.Join(suite.T().TempDir(), "absent.yaml"))
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestDefaultIsValid() {
	cfg := Default()
	cfg.Broker.AccountID = "001-001-1234567-001"
	suite.NoError(cfg.Validate())
}

func (suite *ConfigTestSuite) TestValidateRejectsEmptyInstruments() {
	cfg := Default()
	cfg.Broker.AccountID = "acct"
	cfg.Instruments = nil
	suite.Error(cfg.Validate())
}

func (suite *ConfigTestSuite) TestValidateRejectsNonPositiveLeverage() {
	cfg := Default()
	cfg.Broker.AccountID = "acct"
	cfg.Signal.Leverage = 0
	suite.Error(cfg.Validate())
}

func (suite *ConfigTestSuite) TestValidateRejectsUnknownWeekday() {
	cfg := Default()
	cfg.Broker.AccountID = "acct"
	cfg.TradingHours.Days = []string{"funday"}

	err := cfg.Validate()
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidTradingWindow))
}

func (suite *ConfigTestSuite) TestValidateRejectsInvertedWindow() {
	cfg := Default()
	cfg.Broker.AccountID = "acct"
	cfg.TradingHours.Start = "21:00"
	cfg.TradingHours.End = "07:00"

	err := cfg.Validate()
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidTradingWindow))
}

func (suite *ConfigTestSuite) TestValidateRejectsBadTimeOfDay() {
	cfg := Default()
	cfg.Broker.AccountID = "acct"
	cfg.TradingHours.Start = "25:61"

	err := cfg.Validate()
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidTradingWindow))
}

func (suite *ConfigTestSuite) TestWeekdays() {
	cfg := Default()
	days := cfg.TradingHours.Weekdays()
	suite.Len(days, 5)
	suite.Equal(time.Monday, days[0])
	suite.Equal(time.Friday, days[4])
}
