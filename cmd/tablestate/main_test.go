package main

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/internal/config"
	tserrors "github.com/lucasriondel/use-persisting-state-for-react-table-sub001/internal/errors"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/localbucket"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/tablestate"
)

func TestStarterConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.ConfigFileName)
	if err := starterConfig().SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	f := &globalFlags{configPath: dir}
	cfg, err := f.loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if _, err := cfg.Table("orders"); err != nil {
		t.Errorf("Table(orders): %v", err)
	}

	f.configPath = path
	if _, err := f.loadConfig(); err != nil {
		t.Errorf("loadConfig from file: %v", err)
	}
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		cfg := config.New()
		b, closeFn, err := openBackend(ctx, cfg)
		if err != nil {
			t.Fatalf("openBackend: %v", err)
		}
		defer closeFn()
		if _, ok := b.(*localbucket.MemoryBackend); !ok {
			t.Errorf("backend: got %T", b)
		}
	})

	t.Run("file", func(t *testing.T) {
		dir := t.TempDir()
		cfg := config.New()
		cfg.Local.Backend = config.BackendFile
		cfg.Local.Dir = filepath.Join(dir, "state")

		b, closeFn, err := openBackend(ctx, cfg)
		if err != nil {
			t.Fatalf("openBackend: %v", err)
		}
		defer closeFn()
		if _, ok := b.(*localbucket.FileBackend); !ok {
			t.Errorf("backend: got %T", b)
		}
		if st, err := os.Stat(cfg.Local.Dir); err != nil || !st.IsDir() {
			t.Errorf("state dir not created: %v", err)
		}
	})

	t.Run("s3", func(t *testing.T) {
		cfg := config.New()
		cfg.Local.Backend = config.BackendS3
		cfg.Local.S3 = config.S3Config{Bucket: "tables", Region: "us-east-1", Endpoint: "http://localhost:9000", PathStyle: true}

		b, closeFn, err := openBackend(ctx, cfg)
		if err != nil {
			t.Fatalf("openBackend: %v", err)
		}
		defer closeFn()
		s3b, ok := b.(*localbucket.S3Backend)
		if !ok {
			t.Fatalf("backend: got %T", b)
		}
		if got := s3b.ObjectKey("orders"); got != "orders.json" {
			t.Errorf("ObjectKey: got %q", got)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := config.New()
		cfg.Local.Backend = "etcd"
		_, _, err := openBackend(ctx, cfg)
		if !stderrors.Is(err, tserrors.New("TS142")) {
			t.Errorf("expected TS142, got %v", err)
		}
	})
}

func TestVersionCmd(t *testing.T) {
	run := func(t *testing.T, args ...string) string {
		t.Helper()
		var out bytes.Buffer
		cmd := versionCmd()
		cmd.SetOut(&out)
		cmd.SetArgs(args)
		if err := cmd.Execute(); err != nil {
			t.Fatalf("version %v: %v", args, err)
		}
		return out.String()
	}

	t.Run("short", func(t *testing.T) {
		got := strings.TrimSpace(run(t, "--short"))
		if got != currentBuildInfo().Version {
			t.Errorf("short: got %q", got)
		}
	})

	t.Run("text", func(t *testing.T) {
		got := run(t)
		for _, want := range []string{config.ConfigFileName, tablestate.DefaultLocalStorageKey, config.BackendRedis} {
			if !strings.Contains(got, want) {
				t.Errorf("output missing %q:\n%s", want, got)
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		var info buildInfo
		if err := json.Unmarshal([]byte(run(t, "--json")), &info); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if info.Config != config.ConfigFileName {
			t.Errorf("config: got %q", info.Config)
		}
		if info.LocalKey != tablestate.DefaultLocalStorageKey {
			t.Errorf("localKey: got %q", info.LocalKey)
		}
		if len(info.Backends) != 4 {
			t.Errorf("backends: got %v", info.Backends)
		}
		if info.Module == "" {
			t.Error("module is empty")
		}
	})
}
