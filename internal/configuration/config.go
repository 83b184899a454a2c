package configuration

import (
	"encoding/json"
	"os"

	"github.com/joho/godotenv"
)

type MongoConfig struct {
	Uri                string `json:"uri"`
	Database           string `json:"database"`
	RoomsCollection    string `json:"roomsCollection"`
	MessagesCollection string `json:"messagesCollection"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Channel  string `json:"channel"`
}

type DirectoryConfig struct {
	Dsn string `json:"dsn"`
}

type AuthConfig struct {
	Secret string `json:"secret"`
}

type ServerConfig struct {
	AppPort        int      `json:"app_port"`
	SocketPort     int      `json:"socket_port"`
	SocketRoute    string   `json:"socketRoute"`
	AllowedOrigins []string `json:"allowedOrigins"`
}

type Config struct {
	ChatDatabase MongoConfig     `json:"mongo"`
	Redis        RedisConfig     `json:"redis"`
	Directory    DirectoryConfig `json:"directory"`
	Auth         AuthConfig      `json:"auth"`
	Server       ServerConfig    `json:"server"`
}

func LoadConfig(config_path string) (*Config, error) {
	// .env is optional; environment wins over the config file
	_ = godotenv.Load()

	file, err := os.ReadFile(config_path)
	if err != nil {
		return nil, err
	}

	var config Config
	err = json.Unmarshal(file, &config)
	if err != nil {
		return nil, err
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Auth.Secret = secret
	}
	if config.Redis.Channel == "" {
		config.Redis.Channel = "user_updates"
	}
	if config.Server.SocketRoute == "" {
		config.Server.SocketRoute = "ws"
	}

	return &config, nil
}
