package conf

import (
	"time"

	"github.com/spf13/viper"
	"tinyex.com/internal/engine"
	"tinyex.com/pkg/config"
)

// Config is shared by the exchange and stress programs.
type Config struct {
	Name        string         `mapstructure:"name" yaml:"name"`
	Log         LogConfig      `mapstructure:"log" yaml:"log"`
	Engine      EngineConfig   `mapstructure:"engine" yaml:"engine"`
	Instruments []string       `mapstructure:"instruments" yaml:"instruments"`
	Accounts    AccountsConfig `mapstructure:"accounts" yaml:"accounts"`
	Metrics     MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	HTTP        HTTPConfig     `mapstructure:"http" yaml:"http"`
	Feed        FeedConfig     `mapstructure:"feed" yaml:"feed"`
	Stress      StressConfig   `mapstructure:"stress" yaml:"stress"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"` // empty: stdout only
}

type EngineConfig struct {
	MailboxSize   int           `mapstructure:"mailbox_size" yaml:"mailbox_size"`
	BatchMax      int           `mapstructure:"batch_max" yaml:"batch_max"`
	EventBusSize  int           `mapstructure:"event_bus_size" yaml:"event_bus_size"`
	WALDir        string        `mapstructure:"wal_dir" yaml:"wal_dir"`
	EnableWAL     bool          `mapstructure:"enable_wal" yaml:"enable_wal"`
	WALBufSize    int           `mapstructure:"wal_buf_size" yaml:"wal_buf_size"`
	SubmitTimeout time.Duration `mapstructure:"submit_timeout" yaml:"submit_timeout"`
}

type AccountsConfig struct {
	InitialCash   float64 `mapstructure:"initial_cash" yaml:"initial_cash"`
	InitialShares int64   `mapstructure:"initial_shares" yaml:"initial_shares"`
	EnforceFunds  bool    `mapstructure:"enforce_funds" yaml:"enforce_funds"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"` // empty: not served
}

type HTTPConfig struct {
	Addr  string  `mapstructure:"addr" yaml:"addr"` // empty: gateway off
	Rate  float64 `mapstructure:"rate" yaml:"rate"` // requests per second per client IP
	Burst int     `mapstructure:"burst" yaml:"burst"`
}

type FeedConfig struct {
	Broker        string        `mapstructure:"broker" yaml:"broker"` // mem | nats
	NatsURL       string        `mapstructure:"nats_url" yaml:"nats_url"`
	Shards        int           `mapstructure:"shards" yaml:"shards"`
	ReorderWindow time.Duration `mapstructure:"reorder_window" yaml:"reorder_window"`
	FillGaps      bool          `mapstructure:"fill_gaps" yaml:"fill_gaps"`
	Influx        InfluxConfig  `mapstructure:"influx" yaml:"influx"`
}

type InfluxConfig struct {
	URL    string `mapstructure:"url" yaml:"url"` // empty: bars are not stored
	Token  string `mapstructure:"token" yaml:"token"`
	Org    string `mapstructure:"org" yaml:"org"`
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
}

type StressConfig struct {
	Users       int     `mapstructure:"users" yaml:"users"`
	Actions     int     `mapstructure:"actions" yaml:"actions"`
	Workers     int     `mapstructure:"workers" yaml:"workers"`
	Rate        float64 `mapstructure:"rate" yaml:"rate"` // actions per second, 0 unlimited
	Burst       int     `mapstructure:"burst" yaml:"burst"`
	LimitWeight float64 `mapstructure:"limit_weight" yaml:"limit_weight"`
	MaxPrice    int     `mapstructure:"max_price" yaml:"max_price"`
	MaxQty      int     `mapstructure:"max_qty" yaml:"max_qty"`
	ResultsDir  string  `mapstructure:"results_dir" yaml:"results_dir"`
	Seed        uint64  `mapstructure:"seed" yaml:"seed"` // 0: time based
}

// DefaultInstruments are listed when the config names none.
var DefaultInstruments = []string{"AAPL", "MSFT", "GOOG", "FB", "AMZN", "SNAP"}

func Defaults() map[string]any {
	return map[string]any{
		"name":                  "exchange",
		"log.level":             "info",
		"engine.mailbox_size":   4096,
		"engine.batch_max":      256,
		"engine.event_bus_size": 1 << 16,
		"engine.wal_dir":        "data/wal",
		"engine.enable_wal":     false,
		"engine.wal_buf_size":   1 << 20,
		"engine.submit_timeout": "5s",
		"instruments":           DefaultInstruments,
		"accounts.initial_cash": 0.0,
		"http.rate":             20.0,
		"http.burst":            40,
		"feed.broker":           "mem",
		"feed.shards":           4,
		"feed.reorder_window":   "0s",
		"stress.users":          50,
		"stress.actions":        10000,
		"stress.workers":        8,
		"stress.burst":          1,
		"stress.limit_weight":   0.9,
		"stress.max_price":      20,
		"stress.max_qty":        100,
		"stress.results_dir":    "results",
	}
}

// Load reads config/<service>.yaml over Defaults. file, when set, replaces
// the search.
func Load(service, file string) (*Config, *viper.Viper, error) {
	var c Config
	v, err := config.Load(service, &c, config.Options{File: file, Defaults: Defaults()})
	if err != nil {
		return nil, nil, err
	}
	if len(c.Instruments) == 0 {
		c.Instruments = DefaultInstruments
	}
	return &c, v, nil
}

func (e EngineConfig) Engine() engine.Config {
	return engine.Config{
		Actor:        engine.ActorConfig{MailboxSize: e.MailboxSize, BatchMax: e.BatchMax},
		EventBusSize: e.EventBusSize,
		WALDir:       e.WALDir,
		EnableWAL:    e.EnableWAL,
		WALBufSize:   e.WALBufSize,
	}
}
