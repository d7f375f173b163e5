// internal/workers/search/parse-search-filters/config.go
package parsesearchfilters

import "time"

type Config struct {
	Timeout     time.Duration
	DefaultSize int
	MaxSize     int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:     5 * time.Second,
		DefaultSize: 10,
		MaxSize:     100,
	}
}
