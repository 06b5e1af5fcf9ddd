package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" validate:"required"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080"`
		CORS            bool          `yaml:"cors" default:"true"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Broker struct {
		AppKey        string        `yaml:"app_key"`
		AppSecret     string        `yaml:"app_secret"`
		AccountNumber string        `yaml:"account_number"`
		AccountCode   string        `yaml:"account_code" default:"01"`
		Simulate      bool          `yaml:"simulate"`
		BaseURL       string        `yaml:"base_url"` // overrides the simulate/live domain
		Timeout       time.Duration `yaml:"timeout" default:"30s"`
		CallDelay     time.Duration `yaml:"call_delay" default:"500ms"`
		MaxRetries    int           `yaml:"max_retries" default:"3" validate:"min=1,max=10"`
		BackoffBase   time.Duration `yaml:"backoff_base" default:"200ms"`
		BackoffMax    time.Duration `yaml:"backoff_max" default:"5s"`
		// Accounts overrides credentials per market, keyed by country code.
		Accounts map[string]BrokerAccount `yaml:"accounts"`
	} `yaml:"broker"`
	Risk struct {
		RiskPct           float64 `yaml:"risk_pct" default:"0.0051" validate:"gt=0,lt=1"`
		RiskATRMult       float64 `yaml:"risk_atr_mult" default:"12" validate:"gt=0"`
		ADTVLimitRatio    float64 `yaml:"adtv_limit_ratio" default:"0.015" validate:"gt=0,lte=1"`
		MaxPositionWeight float64 `yaml:"max_position_weight" default:"0.15" validate:"gt=0,lte=1"`
		EquityUSD         float64 `yaml:"equity_usd" default:"100000" validate:"gt=0"`
		USDKRW            float64 `yaml:"usd_krw" default:"1350" validate:"gt=0"`
		MinADTVUSD        float64 `yaml:"min_adtv_usd" default:"10000000"`
		MinADTVOther      float64 `yaml:"min_adtv_other" default:"20000000"`
	} `yaml:"risk"`
	Strategy struct {
		VIXSymbol       string  `yaml:"vix_symbol" default:"VIX"`
		VIXHalt         float64 `yaml:"vix_halt" default:"30"`
		AntiChaseRatio  float64 `yaml:"anti_chase_ratio" default:"0.975"`
		BuyExpiryDays   int     `yaml:"buy_expiry_days" default:"3"`
		SellExpiryDays  int     `yaml:"sell_expiry_days" default:"1"`
		Workers         int     `yaml:"workers" default:"0"` // 0 means min(NumCPU, 10)
		PrevCloseExtra  bool    `yaml:"prev_close_extra" default:"true"`
		LiquidateOrphan bool    `yaml:"liquidate_orphans" default:"true"`
	} `yaml:"strategy"`
	Session struct {
		DryRun             bool          `yaml:"dry_run"`
		Lock               bool          `yaml:"lock" default:"true"`
		LockTTL            time.Duration `yaml:"lock_ttl" default:"2h"`
		Timezone           string        `yaml:"timezone" default:"Asia/Seoul"`
		MaxOrdersPerSymbol int           `yaml:"max_orders_per_symbol" default:"10" validate:"min=1"`
	} `yaml:"session"`
	SQLite struct {
		Path string `yaml:"path" default:"data/autotrade.db"`
	} `yaml:"sqlite"`
	ClickHouse struct {
		Host        string        `yaml:"host" default:"localhost"`
		Port        int           `yaml:"port" default:"9000"`
		Database    string        `yaml:"database" default:"autotrade"`
		User        string        `yaml:"user" default:"default"`
		Password    string        `yaml:"password"`
		UseHTTP     bool          `yaml:"use_http"`
		AsyncInsert bool          `yaml:"async_insert"`
		DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout time.Duration `yaml:"read_timeout" default:"30s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"autotrade"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers      []string      `yaml:"brokers"`
		RequiredAcks int           `yaml:"required_acks" default:"1"`
		Compression  string        `yaml:"compression" default:"snappy"`
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		Topics       struct {
			Summary  string `yaml:"summary" default:"autotrade.session.summary"`
			Alerts   string `yaml:"alerts" default:"autotrade.alerts"`
			Logs     string `yaml:"logs" default:"autotrade.logs"`
			Commands string `yaml:"commands" default:"autotrade.session.commands"`
		} `yaml:"topics"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"autotrade"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"500ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"10s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"autotrade.session.commands.dlq"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Log struct {
		Level          string        `yaml:"level" default:"info"`
		Format         string        `yaml:"format" default:"console"`
		Output         string        `yaml:"output" default:"stdout"`
		FlushInterval  time.Duration `yaml:"flush_interval" default:"30s"`
		CountThreshold int           `yaml:"count_threshold" default:"100"`
	} `yaml:"log"`
}

// BrokerAccount is one set of brokerage credentials. Blank fields fall back
// to the top-level broker block.
type BrokerAccount struct {
	AppKey        string `yaml:"app_key"`
	AppSecret     string `yaml:"app_secret"`
	AccountNumber string `yaml:"account_number"`
	AccountCode   string `yaml:"account_code"`
}

var accountMarkets = []string{"KOR", "USA", "CHN", "HKG", "JPN", "VNM"}

// Account resolves the credentials used for market.
func (c *Config) Account(market string) BrokerAccount {
	a := c.Broker.Accounts[market]
	if a.AppKey == "" {
		a.AppKey = c.Broker.AppKey
	}
	if a.AppSecret == "" {
		a.AppSecret = c.Broker.AppSecret
	}
	if a.AccountNumber == "" {
		a.AccountNumber = c.Broker.AccountNumber
	}
	if a.AccountCode == "" {
		a.AccountCode = c.Broker.AccountCode
	}
	return a
}

// Load reads and parses a YAML configuration file, filling defaults for absent keys.
func Load(path string) (*Config, error) {
	c, err := decode(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads a .env file when present, then the YAML config, then applies
// environment overrides. Credentials normally arrive through the environment.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := decode(path)
	if err != nil {
		return nil, err
	}
	applyEnv(c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func decode(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("KIS_APP_KEY"); v != "" {
		c.Broker.AppKey = v
	}
	if v := os.Getenv("KIS_APP_SECRET"); v != "" {
		c.Broker.AppSecret = v
	}
	if v := os.Getenv("KIS_ACCOUNT_NUMBER"); v != "" {
		c.Broker.AccountNumber = v
	}
	if v := os.Getenv("KIS_ACCOUNT_CODE"); v != "" {
		c.Broker.AccountCode = v
	}
	if v := os.Getenv("KIS_SIMULATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Broker.Simulate = b
		}
	}
	for _, m := range accountMarkets {
		applyAccountEnv(c, m)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.SQLite.Path = v
	}
}

// applyAccountEnv reads KIS_APP_KEY_USA and friends into the market's override.
func applyAccountEnv(c *Config, market string) {
	a, found := c.Broker.Accounts[market]
	set := func(dst *string, name string) {
		if v := os.Getenv(name + "_" + market); v != "" {
			*dst = v
			found = true
		}
	}
	set(&a.AppKey, "KIS_APP_KEY")
	set(&a.AppSecret, "KIS_APP_SECRET")
	set(&a.AccountNumber, "KIS_ACCOUNT_NUMBER")
	set(&a.AccountCode, "KIS_ACCOUNT_CODE")
	if !found {
		return
	}
	if c.Broker.Accounts == nil {
		c.Broker.Accounts = map[string]BrokerAccount{}
	}
	c.Broker.Accounts[market] = a
}

var validate = validator.New()

// Validate checks tag constraints and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Broker.AppKey == "" || c.Broker.AppSecret == "" {
		return fmt.Errorf("broker.app_key and broker.app_secret are required")
	}
	if len(c.Broker.AccountNumber) != 8 {
		return fmt.Errorf("broker.account_number must be 8 digits, got %q", c.Broker.AccountNumber)
	}
	for m := range c.Broker.Accounts {
		if !knownMarket(m) {
			return fmt.Errorf("broker.accounts: unknown market %q", m)
		}
		if n := c.Account(m).AccountNumber; len(n) != 8 {
			return fmt.Errorf("broker.accounts.%s.account_number must be 8 digits, got %q", m, n)
		}
	}
	if c.Strategy.BuyExpiryDays < 1 || c.Strategy.SellExpiryDays < 1 {
		return fmt.Errorf("strategy expiry days must be positive")
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be 'console' or 'json', got '%s'", c.Log.Format)
	}
	return nil
}

func knownMarket(m string) bool {
	for _, k := range accountMarkets {
		if k == m {
			return true
		}
	}
	return false
}

// Location resolves the session timezone used for anchor and expiry dates.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Session.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
