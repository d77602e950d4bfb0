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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dbEnvKeys = []string{
	"DB_DIALECT", "DB_HOST", "DB_PORT", "DB_USERNAME", "DB_PASSWORD",
	"DB_DATABASE", "DB_DATABASE_TEST", "DB_LOGGING", "DB_SSLMODE",
}

// isolateEnv clears DB_* variables and dotenv files for the test.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range dbEnvKeys {
		t.Setenv(key, "")
	}
	files := DotEnvFiles
	DotEnvFiles = nil
	t.Cleanup(func() { DotEnvFiles = files })
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("Should use development defaults", func(t *testing.T) {
		isolateEnv(t)
		cfg, err := LoadConfig("", EnvDevelopment)
		require.NoError(t, err)
		assert.Equal(t, DialectMySQL, cfg.Dialect)
		assert.Equal(t, "127.0.0.1", cfg.Host)
		assert.Equal(t, 3306, cfg.Port)
		assert.Equal(t, "root", cfg.Username)
		assert.Equal(t, "saas", cfg.Database)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Should leave production without a target", func(t *testing.T) {
		isolateEnv(t)
		cfg, err := LoadConfig("", EnvProduction)
		require.NoError(t, err)
		assert.Empty(t, cfg.Host)
		assert.Empty(t, cfg.Database)
		assert.Equal(t, 3306, cfg.Port)
		assert.Error(t, cfg.Validate())
	})

	t.Run("Should read the environment section of the YAML file", func(t *testing.T) {
		isolateEnv(t)
		path := writeFile(t, "database.yaml", `
development:
  host: dev-db
test:
  dialect: postgres
  host: test-db
  port: 5432
  database: app_test
  slow_query_time: 500ms
  logging: true
`)
		cfg, err := LoadConfig(path, EnvTest)
		require.NoError(t, err)
		assert.Equal(t, DialectPostgres, cfg.Dialect)
		assert.Equal(t, "test-db", cfg.Host)
		assert.Equal(t, 5432, cfg.Port)
		assert.Equal(t, "app_test", cfg.Database)
		assert.Equal(t, "root", cfg.Username)
		assert.Equal(t, 500*time.Millisecond, cfg.SlowQueryTime)
		assert.True(t, cfg.EnableQueryLog)
		assert.Equal(t, 100, cfg.MaxOpenConns)
	})

	t.Run("Should let environment variables win over the file", func(t *testing.T) {
		isolateEnv(t)
		path := writeFile(t, "database.yaml", "development:\n  host: file-host\n")
		t.Setenv("DB_HOST", "env-host")
		t.Setenv("DB_PORT", "3307")
		t.Setenv("DB_DATABASE", "orders")
		t.Setenv("DB_DATABASE_TEST", "ignored")
		t.Setenv("DB_LOGGING", "true")

		cfg, err := LoadConfig(path, EnvDevelopment)
		require.NoError(t, err)
		assert.Equal(t, "env-host", cfg.Host)
		assert.Equal(t, 3307, cfg.Port)
		assert.Equal(t, "orders", cfg.Database)
		assert.True(t, cfg.EnableQueryLog)
	})

	t.Run("Should use DB_DATABASE_TEST only in test", func(t *testing.T) {
		isolateEnv(t)
		t.Setenv("DB_DATABASE", "orders")
		t.Setenv("DB_DATABASE_TEST", "orders_test")
		t.Setenv("DB_LOGGING", "true")

		cfg, err := LoadConfig("", EnvTest)
		require.NoError(t, err)
		assert.Equal(t, "orders_test", cfg.Database)
		assert.False(t, cfg.EnableQueryLog)
	})

	t.Run("Should load dotenv files without overriding the process", func(t *testing.T) {
		isolateEnv(t)
		require.NoError(t, os.Unsetenv("DB_SSLMODE"))
		t.Setenv("DB_USERNAME", "from-process")
		DotEnvFiles = []string{writeFile(t, ".env", "DB_SSLMODE=require\nDB_USERNAME=from-file\n")}

		cfg, err := LoadConfig("", EnvDevelopment)
		require.NoError(t, err)
		assert.Equal(t, "require", cfg.SSLMode)
		assert.Equal(t, "from-process", cfg.Username)
	})

	t.Run("Should prefer the API package dotenv file of a monorepo", func(t *testing.T) {
		defaults := DotEnvFiles
		isolateEnv(t)
		DotEnvFiles = defaults
		for _, key := range []string{"DB_HOST", "DB_USERNAME", "DB_SSLMODE"} {
			require.NoError(t, os.Unsetenv(key))
		}

		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "packages", "api"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "packages", "api", ".env"),
			[]byte("DB_HOST=api-db\nDB_USERNAME=api-user\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
			[]byte("DB_HOST=local-db\nDB_SSLMODE=require\n"), 0o644))
		t.Chdir(dir)

		cfg, err := LoadConfig("", EnvDevelopment)
		require.NoError(t, err)
		assert.Equal(t, "api-db", cfg.Host)
		assert.Equal(t, "api-user", cfg.Username)
		assert.Equal(t, "require", cfg.SSLMode)
	})

	t.Run("Should reject bad input", func(t *testing.T) {
		isolateEnv(t)
		_, err := LoadConfig("", "staging")
		assert.Error(t, err)

		t.Setenv("DB_PORT", "abc")
		_, err = LoadConfig("", EnvDevelopment)
		assert.ErrorContains(t, err, "DB_PORT")

		t.Setenv("DB_PORT", "")
		_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), EnvDevelopment)
		assert.Error(t, err)
	})
}

func TestCurrentEnvironment(t *testing.T) {
	t.Run("Should default to development", func(t *testing.T) {
		t.Setenv("APP_ENV", "")
		assert.Equal(t, EnvDevelopment, CurrentEnvironment())
		t.Setenv("APP_ENV", "Production")
		assert.Equal(t, EnvProduction, CurrentEnvironment())
	})
}

func TestConnectionConfigValidate(t *testing.T) {
	t.Run("Should allow sqlite without host", func(t *testing.T) {
		cfg := &ConnectionConfig{Dialect: DialectSQLite, Database: ":memory:"}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Should join every problem", func(t *testing.T) {
		err := (&ConnectionConfig{Dialect: "oracle"}).Validate()
		require.Error(t, err)
		assert.ErrorContains(t, err, "unsupported database dialect")
		assert.ErrorContains(t, err, "database name is required")
		assert.ErrorContains(t, err, "database host is required")
	})
}
