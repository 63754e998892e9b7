package config

import (
	"os"
	"strconv"
)

func loadDevelopmentConfig(cfg *Config) {
	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err == nil {
		cfg.ServerPort = port
	}

	cfg.DatabaseDebug = true
	if cfg.DatabaseFilePath == "" {
		cfg.DatabaseFilePath = "./tmp/data.sqlite"
	}
	if cfg.ServerHost == "" {
		cfg.ServerHost = "127.0.0.1"
	}
}

func loadTestConfig(cfg *Config) {
	cfg.DatabaseFilePath = ":memory:"
	cfg.ServerHost = "127.0.0.1"
	cfg.DatabaseConnectRetryCount = 1
}

func loadProductionConfig(_ *Config) {}
