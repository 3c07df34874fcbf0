package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Storage.Backend != BackendFile || cfg.Storage.PostsDir != "posts" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Sync.Interval != 5*time.Minute || cfg.Sync.Timeout != 30*time.Second {
		t.Errorf("sync durations = %v %v", cfg.Sync.Interval, cfg.Sync.Timeout)
	}
	if cfg.Sync.WorkDir != "posts" {
		t.Errorf("work dir = %q, want the posts dir", cfg.Sync.WorkDir)
	}
	if cfg.Blog.PageSize != 10 || cfg.Blog.DefaultAuthor != "admin" {
		t.Errorf("blog = %+v", cfg.Blog)
	}
}

func TestLoadConventionalEnv(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("ADMIN_PASSWORD", "pw")
	t.Setenv("POSTS_REPO_URL", "https://example.com/posts.git")
	t.Setenv("DIFY_API_URL", "https://ai.example.com/v1")
	t.Setenv("DIFY_API_KEY", "app-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 8081 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Session.Secret != "s3cret" || cfg.Session.AdminPassword != "pw" {
		t.Errorf("session = %+v", cfg.Session)
	}
	if cfg.Sync.RepoUrl != "https://example.com/posts.git" {
		t.Errorf("repo url = %q", cfg.Sync.RepoUrl)
	}
	if cfg.Assistant.Url != "https://ai.example.com/v1" || cfg.Assistant.ApiKey != "app-key" {
		t.Errorf("assistant = %+v", cfg.Assistant)
	}
}

func TestLoadPrefixedEnv(t *testing.T) {
	t.Setenv("BLOG_SYNC_INTERVAL", "90s")
	t.Setenv("BLOG_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Sync.Interval != 90*time.Second {
		t.Errorf("interval = %v", cfg.Sync.Interval)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blog.yaml")
	doc := `
storage:
  backend: table
  driver: sqlite
  dsn: "file:blog.db"
blog:
  page_size: 5
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Storage.Backend != BackendTable || cfg.Storage.Driver != "sqlite" || cfg.Storage.DSN != "file:blog.db" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Blog.PageSize != 5 {
		t.Errorf("page size = %d", cfg.Blog.PageSize)
	}
}

func TestLoadRejectsTableWithoutDSN(t *testing.T) {
	t.Setenv("BLOG_STORAGE_BACKEND", "table")

	if _, err := Load(""); err == nil {
		t.Error("table backend without dsn accepted")
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("BLOG_STORAGE_BACKEND", "s3")

	if _, err := Load(""); err == nil {
		t.Error("unknown backend accepted")
	}
}
