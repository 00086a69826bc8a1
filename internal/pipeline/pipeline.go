// Package pipeline runs the full refresh: fetch both collections, validate
// them, replace the stored tables and print the report.
//
// Stage order is fixed and the first failing stage aborts the run. Validation
// happens before any write, so a bad payload leaves the previous load intact.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"postetl/internal/config"
	"postetl/internal/fetch"
	"postetl/internal/metrics"
	"postetl/internal/model"
	"postetl/internal/report"
	"postetl/internal/schema"
	"postetl/internal/storage"
)

// Stage names as they appear in logs and metrics.
const (
	StageFetchUsers = "fetch_users"
	StageFetchPosts = "fetch_posts"
	StageValidate   = "validate"
	StageLoad       = "load"
	StageQuery      = "query"
)

// Fetcher retrieves one collection of raw records.
type Fetcher interface {
	Records(ctx context.Context, url string) ([]map[string]any, error)
}

// Deps are the pipeline's injectable collaborators. Zero values get wired to
// the real implementations; tests substitute fakes.
type Deps struct {
	Fetcher  Fetcher
	OpenRepo func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
	Stdout   io.Writer
	Logf     func(format string, args ...any)
}

func (d Deps) withDefaults(cfg config.Config) Deps {
	if d.Fetcher == nil {
		d.Fetcher = fetch.NewClient(cfg.Source.Timeout.Std())
	}
	if d.OpenRepo == nil {
		d.OpenRepo = storage.New
	}
	if d.Stdout == nil {
		d.Stdout = os.Stdout
	}
	if d.Logf == nil {
		d.Logf = log.Printf
	}
	return d
}

// Run executes one full pipeline pass.
func Run(ctx context.Context, cfg config.Config, deps Deps) error {
	deps = deps.withDefaults(cfg)
	start := time.Now()

	var users, posts []map[string]any

	err := stage(StageFetchUsers, deps.Logf, func() error {
		var err error
		users, err = deps.Fetcher.Records(ctx, cfg.Source.UsersURL)
		if err != nil {
			return err
		}
		deps.Logf("fetched %d user records from %s", len(users), cfg.Source.UsersURL)
		return nil
	})
	if err != nil {
		return err
	}

	err = stage(StageFetchPosts, deps.Logf, func() error {
		var err error
		posts, err = deps.Fetcher.Records(ctx, cfg.Source.PostsURL)
		if err != nil {
			return err
		}
		deps.Logf("fetched %d post records from %s", len(posts), cfg.Source.PostsURL)
		return nil
	})
	if err != nil {
		return err
	}

	var userRows, postRows []schema.Row

	err = stage(StageValidate, deps.Logf, func() error {
		var err error
		if userRows, err = schema.Apply(users, model.UserContract()); err != nil {
			return err
		}
		if postRows, err = schema.Apply(posts, model.PostContract()); err != nil {
			return err
		}
		metrics.RecordRecords("users", len(userRows))
		metrics.RecordRecords("posts", len(postRows))
		return nil
	})
	if err != nil {
		return err
	}

	var repo storage.Repository

	err = stage(StageLoad, deps.Logf, func() error {
		var err error
		repo, err = deps.OpenRepo(ctx, cfg.StorageConfig())
		if err != nil {
			return err
		}
		// Users first so posts never reference a table that predates this run.
		if err := repo.ReplaceTable(ctx, model.TableFor(model.UserContract()), rowValues(userRows)); err != nil {
			return err
		}
		if err := repo.ReplaceTable(ctx, model.TableFor(model.PostContract()), rowValues(postRows)); err != nil {
			return err
		}
		deps.Logf("loaded %d users, %d posts into %s store", len(userRows), len(postRows), cfg.Storage.Kind)
		return nil
	})
	if repo != nil {
		defer repo.Close()
	}
	if err != nil {
		return err
	}

	err = stage(StageQuery, deps.Logf, func() error {
		tables, err := report.NewEngine(repo, cfg.Storage.Kind).All(ctx)
		if err != nil {
			return err
		}
		for i, tbl := range tables {
			if i > 0 {
				if _, err := fmt.Fprintln(deps.Stdout); err != nil {
					return err
				}
			}
			if err := report.Render(deps.Stdout, tbl); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	deps.Logf("pipeline completed in %s", time.Since(start).Truncate(time.Millisecond))
	return nil
}

// stage wraps one pipeline step with timing, metrics and error context.
func stage(name string, logf func(string, ...any), fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordStage(name, err, time.Since(start))

	if err != nil {
		logf("stage %s failed after %s: %v", name, time.Since(start).Truncate(time.Millisecond), err)
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func rowValues(rows []schema.Row) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}
