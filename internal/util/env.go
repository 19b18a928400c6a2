package util

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/OFFIS-RIT/trackgraph/pkg/logger"

	"github.com/joho/godotenv"
)

func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using system environment variables")
	}
}

func GetEnv(key string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return ""
	}
	return value
}

func GetEnvString(key string, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	return value
}

func GetEnvNumeric(key string, defaultValue float64) float64 {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	returnValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return returnValue
}

func GetEnvInt(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	returnValue, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}

	return returnValue
}

func GetEnvBool(key string, defaultValue bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	if value == "true" || value == "false" {
		return value == "true"
	}

	return defaultValue
}

// GetEnvFloats parses a comma separated list of floats. An unset or empty
// variable yields defaultValue.
func GetEnvFloats(key string, defaultValue []float64) ([]float64, error) {
	value := strings.TrimSpace(GetEnv(key))
	if value == "" {
		return defaultValue, nil
	}

	parts := strings.Split(value, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// GetEnvInts parses a comma separated list of integers. An unset or empty
// variable yields nil.
func GetEnvInts(key string) ([]int64, error) {
	value := strings.TrimSpace(GetEnv(key))
	if value == "" {
		return nil, nil
	}

	parts := strings.Split(value, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		out = append(out, n)
	}
	return out, nil
}
