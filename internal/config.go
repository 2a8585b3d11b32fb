package internal

import "time"

type Config struct {
	Host                 string        `env:"HOST"`
	Port                 int           `env:"PORT,required=true"`
	LogLevel             string        `env:"LOG_LEVEL,required=true"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath        string        `env:"BLUGE_FILEPATH,required=true"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT,required=true"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,required=true"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,required=true"`
	StorageGCInterval    time.Duration `env:"STORAGE_GC_INTERVAL,required=true"`
	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,required=true"`
	SearchLimit          int           `env:"SEARCH_LIMIT"`
}
