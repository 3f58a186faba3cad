package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads .env and then .env.$APP_ENV on top of it. Missing files
// are not an error; the returned list names the files that were applied.
func LoadDotEnv() []string {
	var loaded []string

	if err := godotenv.Load(".env"); err == nil {
		loaded = append(loaded, ".env")
	}

	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		return loaded
	}

	envFile := fmt.Sprintf(".env.%s", appEnv)
	if err := godotenv.Overload(envFile); err == nil {
		loaded = append(loaded, envFile)
	}
	return loaded
}
