package redisstore

import (
	"crypto/tls"

	"github.com/redis/go-redis/v9"
)

// Options configures the Redis connection and key namespace of a Store.
type Options struct {
	// Redis server address.
	Address string `yaml:"address"`
	// Password required when connecting to the Redis server.
	Password string `yaml:"password"`
	// DB to connect to.
	DB int `yaml:"db"`
	// Prefix namespaces every key the store writes.
	Prefix string `yaml:"prefix"`
	// TLS config.
	TLSConfig *tls.Config `yaml:"-"`
}

func DefaultOptions() Options {
	return Options{
		Address: "localhost:6379",
		Prefix:  "docsession",
	}
}

// Open connects a Store using options.
func Open(options Options) *Store {
	client := redis.NewClient(&redis.Options{
		TLSConfig: options.TLSConfig,
		Addr:      options.Address,
		Password:  options.Password,
		DB:        options.DB,
	})
	s := New(client, options.Prefix)
	s.owned = true
	return s
}
