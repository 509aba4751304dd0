// Package config loads application configuration from environment variables
// into annotated structs.
//
// It wraps github.com/caarlos0/env/v11 for parsing and
// github.com/joho/godotenv for optional .env loading: the first Load in a
// process reads a local .env file if present, then every call parses the
// process environment into the given struct using `env` field tags.
//
//	type ServerConfig struct {
//	    Addr string `env:"HTTP_ADDR" envDefault:":8080"`
//	}
//
//	var cfg ServerConfig
//	config.MustLoad(&cfg)
//
// Failures wrap ErrParsingConfig; match with errors.Is.
package config
