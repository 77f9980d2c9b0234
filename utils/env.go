package utils

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadEnv loads environment variables from a .env file.
// Variables already set in the process environment win.
func LoadEnv(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("error opening %s file: %w", filename, err)
	}
	defer file.Close()

	log := Logger().With("file", filename)
	log.Debug("loading environment file")

	scanner := bufio.NewScanner(file)
	lineNumber := 0

	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			log.Warn("invalid line in environment file", "line", lineNumber)
			continue
		}

		key = strings.TrimSpace(key)
		value = unquote(strings.TrimSpace(value))
		if key == "" {
			continue
		}

		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("setting %s from %s: %w", key, filename, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading %s file: %w", filename, err)
	}

	return nil
}

// LoadEnvWithFallback loads every standard .env location that exists.
// Earlier files take precedence over later ones.
func LoadEnvWithFallback() error {
	for _, location := range []string{".env.local", ".env", "config/.env"} {
		if err := LoadEnv(location); err != nil {
			return err
		}
	}
	return nil
}

func unquote(value string) string {
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}

// GetEnv returns the variable or def when unset or empty.
func GetEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// LookupBoolEnv parses a boolean variable. ok is false when unset or unparsable.
func LookupBoolEnv(key string) (value bool, ok bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		switch strings.ToLower(v) {
		case "yes", "on":
			return true, true
		case "no", "off":
			return false, true
		}
		return false, false
	}
	return b, true
}

// LookupIntEnv parses an integer variable. ok is false when unset or unparsable.
func LookupIntEnv(key string) (value int, ok bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
