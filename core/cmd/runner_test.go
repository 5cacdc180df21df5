package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	coreconfig "github.com/m3rciful/sheetbot/core/config"
	coretelegram "github.com/m3rciful/sheetbot/core/telegram"
)

type fakeApp struct {
	opts coretelegram.RunOptions
	err  error
}

func (a fakeApp) TelegramRunOptions() (coretelegram.RunOptions, error) { return a.opts, a.err }

func baseOptions(t *testing.T, gotPath *string) Options {
	t.Helper()
	return Options{
		ConfigEnvVar: "SHEETBOT_TEST_CONFIG",
		LoadConfig: func(path string) (ConfigCarrier, error) {
			*gotPath = path
			return &coreconfig.Config{}, nil
		},
		Bootstrap:      func(ConfigCarrier) (TelegramApp, error) { return fakeApp{}, nil },
		ShutdownLogger: func() error { return nil },
	}
}

func TestRunRequiresLoaders(t *testing.T) {
	if err := Run(Options{}); err == nil {
		t.Fatal("expected error without LoadConfig")
	}
	if err := Run(Options{LoadConfig: func(string) (ConfigCarrier, error) { return nil, nil }}); err == nil {
		t.Fatal("expected error without Bootstrap")
	}
}

func TestRunLoadsEnvFileAndRunsHooks(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("SHEETBOT_TEST_VALUE=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SHEETBOT_TEST_VALUE", "")
	os.Unsetenv("SHEETBOT_TEST_VALUE")

	var path string
	opts := baseOptions(t, &path)
	opts.EnvFiles = []string{envFile, filepath.Join(dir, "missing.env")}

	var started, stopped bool
	opts.RunTelegram = func(ctx context.Context, ro coretelegram.RunOptions) error {
		if err := ro.OnStart(ctx, coretelegram.Runtime{}); err != nil {
			return err
		}
		started = true
		if err := ro.OnStop(ctx, coretelegram.Runtime{}); err != nil {
			return err
		}
		stopped = true
		return nil
	}

	if err := Run(opts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := os.Getenv("SHEETBOT_TEST_VALUE"); got != "from-dotenv" {
		t.Fatalf("dotenv not loaded, got %q", got)
	}
	if path != "" {
		t.Fatalf("expected env-only config, got path %q", path)
	}
	if !started || !stopped {
		t.Fatalf("hooks not run: started=%v stopped=%v", started, stopped)
	}
}

func TestRunUsesConfigPath(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(file, []byte("env: test\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SHEETBOT_TEST_CONFIG", file)

	var path string
	opts := baseOptions(t, &path)
	opts.RunTelegram = func(context.Context, coretelegram.RunOptions) error { return nil }
	if err := Run(opts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if path != file {
		t.Fatalf("path = %q, want %q", path, file)
	}
}

func TestRunMissingExplicitConfig(t *testing.T) {
	t.Setenv("SHEETBOT_TEST_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
	var path string
	if err := Run(baseOptions(t, &path)); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestRunMissingDefaultConfigFallsBackToEnv(t *testing.T) {
	var path string
	opts := baseOptions(t, &path)
	opts.DefaultConfigPath = filepath.Join(t.TempDir(), "config.yaml")
	opts.RunTelegram = func(context.Context, coretelegram.RunOptions) error { return nil }
	if err := Run(opts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if path != "" {
		t.Fatalf("path = %q", path)
	}
}

func TestRunPropagatesOptionsError(t *testing.T) {
	var path string
	opts := baseOptions(t, &path)
	want := errors.New("no token")
	opts.Bootstrap = func(ConfigCarrier) (TelegramApp, error) { return fakeApp{err: want}, nil }
	if err := Run(opts); !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}
