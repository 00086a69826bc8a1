package pipeline

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"postetl/internal/config"
	"postetl/internal/storage"
	_ "postetl/internal/storage/sqlite"
)

const (
	usersJSON = `[
		{"id": 1, "name": "Ann", "username": "ann", "email": "ann@example.com"},
		{"id": 2, "name": "Bo", "username": "bo", "email": "bo@example.com"}
	]`
	postsJSON = `[
		{"userId": 1, "id": 1, "title": "first", "body": "a long enough body"},
		{"userId": 1, "id": 2, "title": "second", "body": "short"},
		{"userId": 2, "id": 3, "title": "third", "body": "mid size"}
	]`
)

// newSource serves fixed users/posts payloads and returns a matching config.
func newSource(t *testing.T, users, posts string) config.Config {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/users", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(users))
	})
	mux.HandleFunc("/posts", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(posts))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Source.UsersURL = srv.URL + "/users"
	cfg.Source.PostsURL = srv.URL + "/posts"
	cfg.Source.Timeout = config.Duration(5 * time.Second)
	cfg.Storage.Kind = "sqlite"
	cfg.Storage.DSN = filepath.Join(t.TempDir(), "pipeline.db")
	return cfg
}

func discardLogf(string, ...any) {}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	cfg := newSource(t, usersJSON, postsJSON)
	var out bytes.Buffer

	err := Run(context.Background(), cfg, Deps{Stdout: &out, Logf: discardLogf})
	if err != nil {
		t.Fatalf("Run() err = %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Posts per user",
		"Longest post",
		"Top authors by total content length",
		"Ann",
		"Bo",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}

	// Ann wrote two posts, Bo one; Ann's row must come first.
	if strings.Index(got, "Ann") > strings.Index(got, "Bo") {
		t.Fatalf("expected Ann before Bo in output:\n%s", got)
	}
}

func TestRun_FullRefreshIsIdempotent(t *testing.T) {
	t.Parallel()

	cfg := newSource(t, usersJSON, postsJSON)

	var first, second bytes.Buffer
	if err := Run(context.Background(), cfg, Deps{Stdout: &first, Logf: discardLogf}); err != nil {
		t.Fatalf("first Run() err = %v", err)
	}
	if err := Run(context.Background(), cfg, Deps{Stdout: &second, Logf: discardLogf}); err != nil {
		t.Fatalf("second Run() err = %v", err)
	}
	if first.String() != second.String() {
		t.Fatalf("outputs differ between runs:\n%s\n---\n%s", first.String(), second.String())
	}
}

func TestRun_FetchFailureNamesStage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Source.UsersURL = srv.URL + "/users"
	cfg.Source.PostsURL = srv.URL + "/posts"
	cfg.Storage.DSN = filepath.Join(t.TempDir(), "x.db")

	err := Run(context.Background(), cfg, Deps{Stdout: &bytes.Buffer{}, Logf: discardLogf})
	if err == nil || !strings.Contains(err.Error(), StageFetchUsers) {
		t.Fatalf("err = %v, want %s stage failure", err, StageFetchUsers)
	}
}

func TestRun_ValidationFailureWritesNothing(t *testing.T) {
	t.Parallel()

	// title is missing from the second post.
	badPosts := `[
		{"userId": 1, "id": 1, "title": "ok", "body": "b"},
		{"userId": 1, "id": 2, "body": "no title"}
	]`
	cfg := newSource(t, usersJSON, badPosts)

	err := Run(context.Background(), cfg, Deps{Stdout: &bytes.Buffer{}, Logf: discardLogf})
	if err == nil || !strings.Contains(err.Error(), StageValidate) {
		t.Fatalf("err = %v, want %s stage failure", err, StageValidate)
	}

	// Nothing was persisted: the store has no tables at all.
	ctx := context.Background()
	repo, rerr := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: cfg.Storage.DSN})
	if rerr != nil {
		t.Fatalf("storage.New() err = %v", rerr)
	}
	defer repo.Close()

	res, qerr := repo.Query(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name IN ('users', 'posts')")
	if qerr != nil {
		t.Fatalf("Query() err = %v", qerr)
	}
	if len(res.Rows) != 0 {
		t.Fatalf("tables created despite validation failure: %v", res.Rows)
	}
}

func TestRun_ValidationFailureKeepsPreviousLoad(t *testing.T) {
	t.Parallel()

	cfg := newSource(t, usersJSON, postsJSON)
	if err := Run(context.Background(), cfg, Deps{Stdout: &bytes.Buffer{}, Logf: discardLogf}); err != nil {
		t.Fatalf("seed Run() err = %v", err)
	}

	// Second run against a source that now serves a malformed posts payload.
	bad := newSource(t, usersJSON, `[{"userId": "not-a-number", "id": 1, "title": "t", "body": "b"}]`)
	bad.Storage.DSN = cfg.Storage.DSN

	err := Run(context.Background(), bad, Deps{Stdout: &bytes.Buffer{}, Logf: discardLogf})
	if err == nil || !strings.Contains(err.Error(), StageValidate) {
		t.Fatalf("err = %v, want %s stage failure", err, StageValidate)
	}

	ctx := context.Background()
	repo, rerr := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: cfg.Storage.DSN})
	if rerr != nil {
		t.Fatalf("storage.New() err = %v", rerr)
	}
	defer repo.Close()

	res, qerr := repo.Query(ctx, "SELECT COUNT(*) FROM posts")
	if qerr != nil {
		t.Fatalf("Query() err = %v", qerr)
	}
	if len(res.Rows) != 1 || res.Rows[0][0] != int64(3) {
		t.Fatalf("posts count = %v, want previous load of 3", res.Rows)
	}
}

// recordingFetcher fails on a chosen URL and records call order.
type recordingFetcher struct {
	calls   []string
	failURL string
}

func (f *recordingFetcher) Records(_ context.Context, url string) ([]map[string]any, error) {
	f.calls = append(f.calls, url)
	if url == f.failURL {
		return nil, errors.New("boom")
	}
	return nil, nil
}

func TestRun_UsersFetchedBeforePosts(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Source.UsersURL = "http://src/users"
	cfg.Source.PostsURL = "http://src/posts"

	f := &recordingFetcher{failURL: "http://src/users"}
	err := Run(context.Background(), cfg, Deps{Fetcher: f, Stdout: &bytes.Buffer{}, Logf: discardLogf})
	if err == nil {
		t.Fatalf("Run() err = nil, want users fetch failure")
	}
	if len(f.calls) != 1 || f.calls[0] != "http://src/users" {
		t.Fatalf("calls = %v, want users fetch only", f.calls)
	}
}

func TestRun_OpenRepoFailureNamesLoadStage(t *testing.T) {
	t.Parallel()

	cfg := newSource(t, usersJSON, postsJSON)
	deps := Deps{
		Stdout: &bytes.Buffer{},
		Logf:   discardLogf,
		OpenRepo: func(context.Context, storage.Config) (storage.Repository, error) {
			return nil, errors.New("refused")
		},
	}

	err := Run(context.Background(), cfg, deps)
	if err == nil || !strings.Contains(err.Error(), StageLoad) {
		t.Fatalf("err = %v, want %s stage failure", err, StageLoad)
	}
}
