package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	content := "DB_DRIVER=sqlite\nJWT_SECRET=dotenv-secret\nJWT_TTL=2h\nCORS_ORIGINS=http://a.test, http://b.test\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	for _, k := range []string{"DB_DRIVER", "JWT_SECRET", "JWT_TTL", "CORS_ORIGINS"} {
		k := k
		old, had := os.LookupEnv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			} else {
				os.Unsetenv(k)
			}
		})
		os.Unsetenv(k)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBDriver != "sqlite" {
		t.Fatalf("DBDriver: want=%q got=%q", "sqlite", cfg.DBDriver)
	}
	if cfg.JWTTTL != 2*time.Hour {
		t.Fatalf("JWTTTL: want=%v got=%v", 2*time.Hour, cfg.JWTTTL)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.test" {
		t.Fatalf("CORSOrigins: got=%v", cfg.CORSOrigins)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_DRIVER", "postgres")
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatalf("Load: expected error without JWT_SECRET")
	}
}
