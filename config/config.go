package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Nats     NatsConfig     `mapstructure:"nats"`
	Game     GameConfig     `mapstructure:"game"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

type DatabaseConfig struct {
	// Driver selects the store implementation: "gorm" or "pq".
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type NatsConfig struct {
	// URL of the NATS server used for room-change notifications.
	// Empty disables the NATS broadcaster.
	URL string `mapstructure:"url"`
}

type GameConfig struct {
	MinPlayers    int           `mapstructure:"min_players"`
	MafiaVoteBias float64       `mapstructure:"mafia_vote_bias"`
	NightDuration time.Duration `mapstructure:"night_duration"`
	BotVoteDelay  time.Duration `mapstructure:"bot_vote_delay"`
	AutoResolve   bool          `mapstructure:"auto_resolve"`
}

type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

func LoadConfig(path string) (config *Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("database.driver", "gorm")
	viper.SetDefault("game.min_players", 4)
	viper.SetDefault("game.mafia_vote_bias", 0.7)
	viper.SetDefault("game.night_duration", time.Minute)
	viper.SetDefault("game.bot_vote_delay", 5*time.Second)
	viper.SetDefault("game.auto_resolve", true)

	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
