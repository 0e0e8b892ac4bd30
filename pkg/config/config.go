package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	APIBaseURL     string `validate:"required,url"`
	WSEndpoint     string `validate:"required"`
	Environment    string `validate:"required,oneof=development staging production"`
	RequestTimeout time.Duration
	ReconnectDelay time.Duration
	MessagePage    int `validate:"min=1,max=200"`
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		APIBaseURL:     getEnv("CHAT_API_BASE_URL", "http://localhost:8080"),
		WSEndpoint:     getEnv("CHAT_WS_ENDPOINT", "ws://localhost:8080/ws/chat"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		RequestTimeout: time.Duration(getEnvAsInt64("CHAT_REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
		ReconnectDelay: time.Duration(getEnvAsInt64("CHAT_RECONNECT_DELAY_SECONDS", 5)) * time.Second,
		MessagePage:    int(getEnvAsInt64("CHAT_MESSAGE_PAGE_SIZE", 50)),
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, err
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}
