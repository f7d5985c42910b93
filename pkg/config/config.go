package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 環境變數前綴，例如 AWARDCHAT_SERVER_ADDRESS
const EnvPrefix = "AWARDCHAT"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Chat      ChatConfig      `mapstructure:"chat"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Presence  PresenceConfig  `mapstructure:"presence"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address" validate:"required"`
	Mode            string        `mapstructure:"mode" validate:"oneof=debug release test"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type DBConfig struct {
	Driver   string `mapstructure:"driver" validate:"oneof=postgres sqlite memory"`
	Host     string `mapstructure:"host" validate:"required_if=Driver postgres"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name" validate:"required_if=Driver postgres"`
	Port     int    `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`
	Path     string `mapstructure:"path" validate:"required_if=Driver sqlite"`
}

type ChatConfig struct {
	CommandBuffer int            `mapstructure:"command_buffer" validate:"gte=0"`
	Categories    []CategorySeed `mapstructure:"categories" validate:"dive"`
	Poll          PollConfig     `mapstructure:"poll"`
}

// CategorySeed 啟動時寫入分類目錄的資料
type CategorySeed struct {
	Name  string   `mapstructure:"name" validate:"required"`
	Rooms []string `mapstructure:"rooms"`
}

// PollConfig 新房間的預設投票範本
type PollConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	QuestionTemplate string   `mapstructure:"question_template" validate:"required_if=Enabled true"`
	Options          []string `mapstructure:"options" validate:"required_if=Enabled true,unique"`
}

type WebSocketConfig struct {
	ReadLimit  int64         `mapstructure:"read_limit" validate:"gt=0"`
	PongWait   time.Duration `mapstructure:"pong_wait" validate:"gt=0"`
	PingPeriod time.Duration `mapstructure:"ping_period" validate:"gt=0,ltfield=PongWait"`
	WriteWait  time.Duration `mapstructure:"write_wait" validate:"gt=0"`
	SendBuffer int           `mapstructure:"send_buffer" validate:"gt=0"`
}

type PresenceConfig struct {
	Driver   string `mapstructure:"driver" validate:"oneof=memory redis"`
	RedisURL string `mapstructure:"redis_url" validate:"required_if=Driver redis"`
	Prefix   string `mapstructure:"prefix"`
}

type RelayConfig struct {
	Driver  string `mapstructure:"driver" validate:"oneof=local nats"`
	NATSURL string `mapstructure:"nats_url" validate:"required_if=Driver nats"`
	Subject string `mapstructure:"subject" validate:"required_if=Driver nats"`
}

type AuthConfig struct {
	MemberSecret string        `mapstructure:"member_secret" validate:"required"`
	TokenTTL     time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
}

// Load 讀取 ./pkg/config 或目前目錄下的 config.yaml，找不到檔案時只使用預設值與環境變數
func Load() (*Config, error) {
	// .env 不存在是正常情況
	_ = godotenv.Load()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./pkg/config")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFile 讀取指定路徑的設定檔
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("db.driver", "memory")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "award_chat")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.path", "award_chat.db")

	v.SetDefault("chat.command_buffer", 64)
	v.SetDefault("chat.poll.enabled", true)
	v.SetDefault("chat.poll.question_template", "Vote for the best in %s")
	v.SetDefault("chat.poll.options", []string{"Nominee A", "Nominee B", "Nominee C"})

	v.SetDefault("websocket.read_limit", 4096)
	v.SetDefault("websocket.pong_wait", 60*time.Second)
	v.SetDefault("websocket.ping_period", 54*time.Second)
	v.SetDefault("websocket.write_wait", 10*time.Second)
	v.SetDefault("websocket.send_buffer", 256)

	v.SetDefault("presence.driver", "memory")
	v.SetDefault("presence.redis_url", "")
	v.SetDefault("presence.prefix", "presence")

	v.SetDefault("relay.driver", "local")
	v.SetDefault("relay.nats_url", "")
	v.SetDefault("relay.subject", "award_chat.events")

	v.SetDefault("auth.member_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
}
