/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tomoncle/coredb/utils"
)

const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

// DotEnvFiles are loaded, when present, before environment overrides are
// read. Variables already set in the process win, and so do earlier files:
// the API package's .env of a monorepo checkout comes before the local one.
var DotEnvFiles = []string{"packages/api/.env", ".env"}

// CurrentEnvironment returns APP_ENV, defaulting to development.
func CurrentEnvironment() string {
	return strings.ToLower(utils.EnvDefaultString("APP_ENV", EnvDevelopment))
}

// LoadConfig builds the connection config for environment.
//
// Sources, lowest precedence first: built-in defaults for the environment,
// the matching section of the YAML file at path (skipped when path is empty),
// then DB_* environment variables, optionally populated from DotEnvFiles.
func LoadConfig(path, environment string) (*ConnectionConfig, error) {
	if environment == "" {
		environment = CurrentEnvironment()
	}
	switch environment {
	case EnvDevelopment, EnvTest, EnvProduction:
	default:
		return nil, fmt.Errorf("unknown environment %q", environment)
	}

	if err := loadDotEnv(DotEnvFiles...); err != nil {
		return nil, err
	}

	cfg := environmentDefaults(environment)
	if path != "" {
		if err := loadYAMLSection(path, environment, cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnvOverrides(cfg, environment); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(files ...string) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env files %v: %w", existing, err)
	}
	return nil
}

func environmentDefaults(environment string) *ConnectionConfig {
	cfg := DefaultConnectionConfig()
	switch environment {
	case EnvDevelopment:
		cfg.Host = "127.0.0.1"
		cfg.Username = "root"
		cfg.Database = "saas"
	case EnvTest:
		cfg.Host = "127.0.0.1"
		cfg.Username = "root"
		cfg.Database = "saas_test"
	}
	return cfg
}

func loadYAMLSection(path, environment string, cfg *ConnectionConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var sections map[string]yaml.Node
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	node, ok := sections[environment]
	if !ok {
		return nil
	}
	if err := node.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode %s section: %w", environment, err)
	}
	return nil
}

func applyEnvOverrides(cfg *ConnectionConfig, environment string) error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setString("DB_DIALECT", &cfg.Dialect)
	setString("DB_HOST", &cfg.Host)
	setString("DB_USERNAME", &cfg.Username)
	setString("DB_PASSWORD", &cfg.Password)
	setString("DB_SSLMODE", &cfg.SSLMode)
	if environment == EnvTest {
		setString("DB_DATABASE_TEST", &cfg.Database)
	} else {
		setString("DB_DATABASE", &cfg.Database)
	}

	if v := os.Getenv("DB_PORT"); v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || port <= 0 {
			return fmt.Errorf("invalid DB_PORT %q", v)
		}
		cfg.Port = port
	}
	// query logging can only be switched on from the environment in development
	if environment == EnvDevelopment {
		cfg.EnableQueryLog = cfg.EnableQueryLog || os.Getenv("DB_LOGGING") == "true"
	}
	return nil
}

// Validate checks that the config names a supported dialect and a target.
func (c *ConnectionConfig) Validate() error {
	var errs []error
	switch c.Dialect {
	case DialectMySQL, DialectPostgres, "postgresql", DialectSQLite, "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("unsupported database dialect: %q", c.Dialect))
	}
	if c.Database == "" {
		errs = append(errs, errors.New("database name is required"))
	}
	if !c.isSQLite() && c.Host == "" {
		errs = append(errs, errors.New("database host is required"))
	}
	return errors.Join(errs...)
}

func (c *ConnectionConfig) isSQLite() bool {
	return c.Dialect == DialectSQLite || c.Dialect == "sqlite3"
}
