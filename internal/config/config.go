// Package config defines the pipeline configuration: a JSON file with
// environment-variable overrides on top.
//
// Precedence: defaults < config file < environment. The environment layer
// exists so deployments can point the same config file at another endpoint or
// store without editing files.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"postetl/internal/storage"
)

// Duration wraps time.Duration for "30s"-style JSON and env values.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Source holds the two fixed record endpoints and the fetch timeout.
type Source struct {
	PostsURL string   `json:"posts_url" env:"POSTETL_POSTS_URL"`
	UsersURL string   `json:"users_url" env:"POSTETL_USERS_URL"`
	Timeout  Duration `json:"timeout" env:"POSTETL_TIMEOUT"`
}

// Storage selects the persistence backend. Kind must match a registered
// storage backend; DSN is a file path for sqlite.
type Storage struct {
	Kind string `json:"kind" env:"POSTETL_STORAGE_KIND"`
	DSN  string `json:"dsn" env:"POSTETL_DSN"`
}

type Config struct {
	Job     string  `json:"job"`
	Source  Source  `json:"source"`
	Storage Storage `json:"storage"`
}

// StorageConfig converts to the storage factory's config type.
func (c Config) StorageConfig() storage.Config {
	return storage.Config{Kind: c.Storage.Kind, DSN: os.ExpandEnv(c.Storage.DSN)}
}

// Default mirrors the pipeline's historical constants.
func Default() Config {
	return Config{
		Job: "posts_users",
		Source: Source{
			PostsURL: "https://jsonplaceholder.typicode.com/posts",
			UsersURL: "https://jsonplaceholder.typicode.com/users",
			Timeout:  Duration(30 * time.Second),
		},
		Storage: Storage{
			Kind: "sqlite",
			DSN:  "data/posts_users.db",
		},
	}
}

// Load reads the JSON config at path over the defaults, then applies
// environment overrides. An empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()

		if err := json.NewDecoder(f).Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config env overrides: %w", err)
	}
	return cfg, nil
}

// Severity of a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding from config validation.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// knownKinds is kept static so validation does not depend on backend
// registration order.
var knownKinds = map[string]bool{"sqlite": true, "postgres": true, "mssql": true}

// Validate reports every problem it can find; the caller decides whether any
// SeverityError issue aborts the run.
func Validate(c Config) []Issue {
	var issues []Issue

	issues = append(issues, validateURL("source.posts_url", c.Source.PostsURL)...)
	issues = append(issues, validateURL("source.users_url", c.Source.UsersURL)...)

	if c.Source.Timeout < 0 {
		issues = append(issues, Issue{SeverityError, "source.timeout", "must not be negative"})
	}
	if c.Source.Timeout.Std() > 5*time.Minute {
		issues = append(issues, Issue{SeverityWarning, "source.timeout", "unusually long; each fetch blocks the whole run"})
	}

	if strings.TrimSpace(c.Storage.Kind) == "" {
		issues = append(issues, Issue{SeverityError, "storage.kind", "must be set"})
	} else if !knownKinds[c.Storage.Kind] {
		issues = append(issues, Issue{SeverityError, "storage.kind",
			fmt.Sprintf("unknown kind %q (supported: sqlite, postgres, mssql)", c.Storage.Kind)})
	}
	if strings.TrimSpace(c.Storage.DSN) == "" {
		issues = append(issues, Issue{SeverityError, "storage.dsn", "must be set"})
	}

	return issues
}

// HasErrors reports whether any issue is SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

func validateURL(path, raw string) []Issue {
	if strings.TrimSpace(raw) == "" {
		return []Issue{{SeverityError, path, "must be set"}}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return []Issue{{SeverityError, path, fmt.Sprintf("invalid URL: %v", err)}}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return []Issue{{SeverityError, path, fmt.Sprintf("unsupported scheme %q", u.Scheme)}}
	}
	return nil
}
