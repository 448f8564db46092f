// Package config loads application configuration from environment variables
// into tagged structs, with an optional .env file for local development.
//
// Each struct type is parsed at most once per process and cached, so
// independent components can call Load for the section they need without
// coordinating startup order:
//
//	var cfg billing.Config
//	config.MustLoad(&cfg)
package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	// ErrNilPointer is returned when Load receives a nil destination.
	ErrNilPointer = errors.New("config: nil pointer")
	// ErrParsing is returned when the environment cannot be parsed into the struct.
	ErrParsing = errors.New("config: failed to parse environment")
)

var (
	dotenvOnce sync.Once

	mu    sync.Mutex
	cache = make(map[string]any)
)

// Load populates v from the process environment. The default .env file is
// read once, if present, before the first parse. Results are cached per
// struct type, so repeated calls for the same type are cheap and return the
// same values even if the environment changed in between.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	dotenvOnce.Do(func() {
		// A missing .env file is fine outside local development.
		_ = godotenv.Load()
	})

	key := fmt.Sprintf("%T", *v)

	mu.Lock()
	defer mu.Unlock()

	if cached, ok := cache[key]; ok {
		*v = cached.(T)
		return nil
	}

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsing, err)
	}
	cache[key] = *v
	return nil
}

// MustLoad is Load for configuration the process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
}

// ResetCache clears the per-type cache. Intended for tests that mutate the
// environment between loads.
func ResetCache() {
	mu.Lock()
	defer mu.Unlock()
	cache = make(map[string]any)
}
