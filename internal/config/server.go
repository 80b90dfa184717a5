package config

import "time"

// ServerConfig holds HTTP and websocket server settings.
type ServerConfig struct {
	ListenAddr     string           `mapstructure:"LISTEN_ADDR"      json:"listen_addr"      validate:"required,listenaddr"`
	PublicURL      string           `mapstructure:"PUBLIC_URL"       json:"public_url"       validate:"omitempty,url"`
	IdleTimeout    time.Duration    `mapstructure:"IDLE_TIMEOUT"     json:"idle_timeout"     validate:"required,reasonable_duration"`
	WriteTimeout   time.Duration    `mapstructure:"WRITE_TIMEOUT"    json:"write_timeout"    validate:"required,timeout_duration"`
	SendBufferSize int              `mapstructure:"SEND_BUFFER_SIZE" json:"send_buffer_size" validate:"required,min=1024,max=1048576"`
	Throttling     ThrottlingConfig `mapstructure:"THROTTLING"       json:"throttling"       validate:"required"`
}

// ThrottlingConfig holds connection and message rate limits.
type ThrottlingConfig struct {
	MaxConnections        int `mapstructure:"MAX_CONNECTIONS"          json:"max_connections"          validate:"required,min=1,max=100000"`
	MaxMessageBytes       int `mapstructure:"MAX_MESSAGE_BYTES"        json:"max_message_bytes"        validate:"required,min=1024,max=1048576"`
	MaxMessagesPerSecond  int `mapstructure:"MAX_MESSAGES_PER_SECOND"  json:"max_messages_per_second"  validate:"required,min=1,max=10000"`
	BurstSize             int `mapstructure:"BURST_SIZE"               json:"burst_size"               validate:"required,min=1,max=1000"`
	ViolationCloseLimit   int `mapstructure:"VIOLATION_CLOSE_LIMIT"    json:"violation_close_limit"    validate:"required,min=1,max=1000"`
}
