package config

import (
	"os"
	"strconv"
	"time"
)

const (
	defaultHTTPAddr             = ":8765"
	defaultCommandTimeoutMS     = 5000
	defaultMaxCommandTimeoutMS  = 600000
	defaultSendQueueSize        = 64
	defaultPingIntervalSec      = 30
	defaultMaxMessageBytes      = 4 << 20
	defaultShutdownGraceSeconds = 10
	defaultLogLevel             = "info"
)

type Config struct {
	HTTPAddr          string
	CommandTimeout    time.Duration
	MaxCommandTimeout time.Duration
	SendQueueSize     int
	PingInterval      time.Duration
	MaxMessageBytes   int64
	ShutdownGrace     time.Duration
	LogLevel          string
}

func Load() Config {
	commandTimeoutMS := parsePositiveIntEnv("WORKBRIDGE_COMMAND_TIMEOUT_MS", defaultCommandTimeoutMS)
	maxCommandTimeoutMS := parsePositiveIntEnv("WORKBRIDGE_MAX_COMMAND_TIMEOUT_MS", defaultMaxCommandTimeoutMS)
	sendQueueSize := parsePositiveIntEnv("WORKBRIDGE_SEND_QUEUE_SIZE", defaultSendQueueSize)
	pingIntervalSec := parsePositiveIntEnv("WORKBRIDGE_PING_INTERVAL_SEC", defaultPingIntervalSec)
	maxMessageBytes := parsePositiveIntEnv("WORKBRIDGE_MAX_MESSAGE_BYTES", defaultMaxMessageBytes)
	shutdownGraceSec := parsePositiveIntEnv("WORKBRIDGE_SHUTDOWN_GRACE_SEC", defaultShutdownGraceSeconds)

	return Config{
		HTTPAddr:          getEnv("WORKBRIDGE_HTTP_ADDR", defaultHTTPAddr),
		CommandTimeout:    time.Duration(commandTimeoutMS) * time.Millisecond,
		MaxCommandTimeout: time.Duration(maxCommandTimeoutMS) * time.Millisecond,
		SendQueueSize:     sendQueueSize,
		PingInterval:      time.Duration(pingIntervalSec) * time.Second,
		MaxMessageBytes:   int64(maxMessageBytes),
		ShutdownGrace:     time.Duration(shutdownGraceSec) * time.Second,
		LogLevel:          getEnv("WORKBRIDGE_LOG_LEVEL", defaultLogLevel),
	}
}

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func parsePositiveIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return defaultValue
	}
	return parsed
}
