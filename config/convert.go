package config

import (
	"time"

	"github.com/Ramsey-B/bellflower/pkg/chat"
	"github.com/Ramsey-B/bellflower/pkg/database"
	"github.com/Ramsey-B/bellflower/pkg/delivery"
	"github.com/Ramsey-B/bellflower/pkg/kafka"
	"github.com/Ramsey-B/bellflower/pkg/notify"
	"github.com/Ramsey-B/bellflower/pkg/redis"
	"github.com/Ramsey-B/bellflower/pkg/scheduler"
	"github.com/Ramsey-B/bellflower/pkg/tracing"
)

// Database returns the postgres connection settings
func (c *Config) Database() database.ConnectionConfig {
	return database.ConnectionConfig{
		Driver:          c.DatabaseDriver,
		Host:            c.DatabaseHost,
		Port:            c.DatabasePort,
		User:            c.DatabaseUserName,
		Password:        c.DatabasePassword,
		Name:            c.DatabaseName,
		SSLMode:         c.DatabaseSSLMode,
		MaxOpenConns:    c.DatabaseMaxOpenConns,
		MaxIdleConns:    c.DatabaseMaxIdleConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

// Migration returns the migration settings
func (c *Config) Migration() *database.MigrationConfig {
	version := c.DatabaseMigrationVersion
	if version < 0 {
		version = 0
	}
	return &database.MigrationConfig{
		MigrationFolderPath: c.DatabaseMigrationFolderPath,
		Version:             uint(version),
		Force:               c.DatabaseMigrationForce,
		AutoRollback:        c.DatabaseMigrationAutoRollback,
	}
}

// Redis returns the Redis connection settings
func (c *Config) Redis() redis.Config {
	return redis.Config{
		Host:        c.RedisHost,
		Port:        c.RedisPort,
		Password:    c.RedisPassword,
		DB:          c.RedisDB,
		DialTimeout: 5 * time.Second,
	}
}

// RateLimit returns the per-caller request limit
func (c *Config) RateLimit() redis.Limit {
	return redis.Limit{Requests: c.RateLimitRequests, Window: c.RateLimitWindow}
}

// Signal returns the signal service client settings
func (c *Config) Signal() delivery.SignalConfig {
	return delivery.SignalConfig{
		BaseURL:            c.SignalURL,
		Username:           c.SignalUsername,
		Password:           c.SignalPassword,
		Timeout:            c.SignalTimeout,
		InsecureSkipVerify: c.SignalInsecureSkipVerify,
		IdentifierSource:   c.SignalIdentifierSource,
		IdentifierTarget:   c.SignalIdentifierTarget,
	}
}

// Notify returns the dispatcher settings
func (c *Config) Notify() notify.Config {
	return notify.Config{DeliveryTimeout: c.NotifyDeliveryTimeout, EmailSubject: c.NotifyEmailSubject}
}

// Kafka returns the producer settings
func (c *Config) Kafka() kafka.Config {
	return kafka.Config{
		Brokers:      c.KafkaBrokers,
		Topic:        c.KafkaNotificationTopic,
		WriteTimeout: c.KafkaWriteTimeout,
	}
}

// OTLP returns the trace exporter settings
func (c *Config) OTLP() tracing.OTLPConfig {
	return tracing.OTLPConfig{
		Enabled:  c.OTLPEnabled,
		Endpoint: c.OTLPEndpoint,
		Protocol: c.OTLPProtocol,
		Insecure: c.OTLPInsecure,
		Timeout:  c.OTLPTimeout,
	}
}

// Scheduler returns the importance scheduler settings
func (c *Config) Scheduler() scheduler.Config {
	return scheduler.Config{Interval: c.SchedulerPollInterval, LockTTL: c.SchedulerLockTTL}
}

// ChatRegistry returns the chat registry settings
func (c *Config) ChatRegistry() chat.RegistryConfig {
	return chat.RegistryConfig{SubscriberBuffer: c.ChatSubscriberBuffer, SendWindow: c.ChatSendWindow}
}

// ChatSocket returns the websocket settings
func (c *Config) ChatSocket() chat.SocketConfig {
	return chat.SocketConfig{
		IdleTimeout:  c.ChatIdleTimeout,
		WriteTimeout: c.ChatWriteTimeout,
		MaxFrameSize: c.ChatMaxFrameBytes,
	}
}
