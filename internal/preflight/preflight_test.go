package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"atelier/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDiskSpace_OK(t *testing.T) {
	result := CheckDiskSpace("test", t.TempDir(), 1)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDiskSpace_BadPath(t *testing.T) {
	result := CheckDiskSpace("test", filepath.Join(t.TempDir(), "nope"), 1)
	if result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestCheckScraperCredentials(t *testing.T) {
	result := CheckScraperCredentials(config.Scraper{})
	if result.Passed {
		t.Fatal("expected failure for missing key")
	}
	result = CheckScraperCredentials(config.Scraper{APIKey: "key", BaseURL: "https://api.example.com"})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckGenerationFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Generation.Provider = ""
	if result := CheckGenerationFromConfig(&cfg); result.Passed {
		t.Fatal("expected failure when no provider selected")
	}

	cfg.Generation.Provider = "gemini"
	cfg.Generation.APIKey = ""
	if result := CheckGenerationFromConfig(&cfg); result.Passed {
		t.Fatal("expected failure when key missing")
	}

	cfg.Generation.APIKey = "key"
	if result := CheckGenerationFromConfig(&cfg); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckVisionFromConfig_UnconfiguredPasses(t *testing.T) {
	cfg := config.Default()
	cfg.Vision.APIKey = ""
	result := CheckVisionFromConfig(&cfg)
	if !result.Passed {
		t.Fatalf("unconfigured vision should pass, got: %s", result.Detail)
	}
}

func TestCheckNtfy_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := CheckNtfy(context.Background(), srv.URL+"/atelier-alerts")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckNtfy_BadEndpoint(t *testing.T) {
	result := CheckNtfy(context.Background(), "not a url")
	if result.Passed {
		t.Fatal("expected failure for malformed endpoint")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Scraper.APIKey = "key"
	cfg.Generation.Provider = "gemini"
	cfg.Generation.APIKey = "key"
	cfg.Notifications.NtfyTopic = ""

	results := RunAll(context.Background(), &cfg)
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if !Passed(results) {
		for _, r := range results {
			if !r.Passed {
				t.Errorf("check %q failed: %s", r.Name, r.Detail)
			}
		}
	}
}

func TestRunAll_FlagsMissingCredentials(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Scraper.APIKey = ""

	results := RunAll(context.Background(), &cfg)
	if Passed(results) {
		t.Fatal("expected at least one failing check")
	}
}
