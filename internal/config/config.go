package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StoreDriverMemory = "memory"
	StoreDriverRedis  = "redis"
)

type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig     `yaml:"http"`
	WebRTC   WebRTCConfig   `yaml:"webrtc"`
	Database DatabaseConfig `yaml:"database"`
	Store    StoreConfig    `yaml:"store"`
	Redis    RedisConfig    `yaml:"redis"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Token    TokenConfig    `yaml:"token"`
	Sweep    SweepConfig    `yaml:"sweep"`
}

type HTTPConfig struct {
	Address      string   `yaml:"address" env:"HTTP_ADDRESS" env-default:""`
	AllowOrigins []string `yaml:"allow_origins"`
}

type WebRTCConfig struct {
	STUNServers       []string      `yaml:"stun_servers"`
	UnansweredTimeout time.Duration `yaml:"unanswered_timeout" env-default:"30s"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"DATABASE_DSN" env-default:""`
}

type StoreConfig struct {
	Driver string `yaml:"driver" env:"STORE_DRIVER" env-default:"memory"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:""`
	Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type MQTTConfig struct {
	Broker    string        `yaml:"broker" env:"MQTT_BROKER" env-default:""`
	ClientID  string        `yaml:"client_id" env:"MQTT_CLIENT_ID" env-default:"doorbell"`
	Username  string        `yaml:"username" env:"MQTT_USERNAME" env-default:""`
	Password  string        `yaml:"password" env:"MQTT_PASSWORD" env-default:""`
	RingTopic string        `yaml:"ring_topic" env-default:"doorbell/ring"`
	LockTopic string        `yaml:"lock_topic" env-default:"doorbell/locks"`
	Timeout   time.Duration `yaml:"timeout" env-default:"10s"`
}

type TokenConfig struct {
	Secret string        `yaml:"secret" env:"TOKEN_SECRET" env-default:""`
	Issuer string        `yaml:"issuer" env-default:"doorbell"`
	TTL    time.Duration `yaml:"ttl" env-default:"1h"`
}

type SweepConfig struct {
	Interval     time.Duration `yaml:"interval" env-default:"15s"`
	MaxRinging   time.Duration `yaml:"max_ringing" env-default:"2m"`
	MaxConnected time.Duration `yaml:"max_connected" env-default:"2h"`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	cfg.setDefaults()

	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

func (c *Config) setDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if len(c.WebRTC.STUNServers) == 0 {
		c.WebRTC.STUNServers = []string{"stun:stun.l.google.com:19302"}
	}
	if c.WebRTC.UnansweredTimeout <= 0 {
		c.WebRTC.UnansweredTimeout = 30 * time.Second
	}
	if c.Store.Driver == "" {
		c.Store.Driver = StoreDriverMemory
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.MQTT.Timeout <= 0 {
		c.MQTT.Timeout = 10 * time.Second
	}
	if c.Token.TTL <= 0 {
		c.Token.TTL = time.Hour
	}
	if c.Sweep.Interval <= 0 {
		c.Sweep.Interval = 15 * time.Second
	}
	if c.Sweep.MaxRinging <= 0 {
		c.Sweep.MaxRinging = 2 * time.Minute
	}
	if c.Sweep.MaxConnected <= 0 {
		c.Sweep.MaxConnected = 2 * time.Hour
	}
}
