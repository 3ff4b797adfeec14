package env

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

var Env map[string]string

// GetEnv looks the key up in the loaded .env values first, then in the process
// environment (containers, tests), and finally falls back to def.
func GetEnv(key, def string) string {
	if val, ok := Env[key]; ok {
		return val
	}
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetEnvInt is GetEnv for integer settings. Unparsable values fall back to def.
func GetEnvInt(key string, def int) int {
	raw := GetEnv(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// SetupEnvFile loads the first .env found walking up from the working directory.
// A missing file is not fatal when required settings come from the process
// environment; config.MustLoad is where absence of secrets is enforced.
func SetupEnvFile() bool {
	envFiles := []string{
		".env",
		"../../.env", // from cmd/trialfunnel
		"../../../.env",
	}

	for _, envFile := range envFiles {
		values, err := godotenv.Read(envFile)
		if err == nil {
			Env = values
			return true
		}
	}
	Env = map[string]string{}
	return false
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
