package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv loads KEY=VALUE pairs from a .env file without overriding
// variables already present in the environment.
func LoadEnv(path string) error {
	return godotenv.Load(path)
}

// LoadEnvOptional is LoadEnv that ignores a missing file.
func LoadEnvOptional(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return LoadEnv(path)
}
