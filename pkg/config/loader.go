package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var dotenvLoaded sync.Once

// Load populates the given configuration struct from environment variables
// using `env:"…"` field tags. The first call in a process also loads a
// local .env file if one exists, so development setups need no exported
// shell variables.
//
// Example:
//
//	type PasswordConfig struct {
//		BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`
//	}
//
//	var cfg PasswordConfig
//	if err := config.Load(&cfg); err != nil { … }
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	dotenvLoaded.Do(func() {
		// The .env file is optional.
		_ = godotenv.Load()
	})

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics on failure. Intended for process
// startup where a missing required variable should stop the service.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
