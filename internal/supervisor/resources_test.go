package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/i1skn/ironbelly-sub000/internal/config"
)

// resourceConfig returns a config whose resource dir holds GeoIP files.
func resourceConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.NewConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "tor")
	cfg.ResourceDir = t.TempDir()
	for _, name := range []string{geoIPFile, geoIPv6File} {
		if err := os.WriteFile(filepath.Join(cfg.ResourceDir, name), []byte(name+" database"), 0o600); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return cfg
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test file
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

// TestInstallStaticResources tests GeoIP and torrc installation.
func TestInstallStaticResources(t *testing.T) {
	t.Parallel()

	t.Run("installs geoip and torrc", func(t *testing.T) {
		t.Parallel()

		cfg := resourceConfig(t)
		if err := NewFileResources(cfg).InstallStaticResources(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := readFile(t, filepath.Join(cfg.DataDir, "geoip")); got != "geoip database" {
			t.Errorf("unexpected geoip content %q", got)
		}
		if got := readFile(t, filepath.Join(cfg.DataDir, "geoip6")); got != "geoip6 database" {
			t.Errorf("unexpected geoip6 content %q", got)
		}
		torrc := readFile(t, cfg.TorrcPath())
		if !strings.Contains(torrc, "GeoIPFile "+filepath.Join(cfg.DataDir, "geoip")) {
			t.Errorf("expected torrc to reference geoip, got:\n%s", torrc)
		}

		info, err := os.Stat(filepath.Join(cfg.DataDir, "data"))
		if err != nil {
			t.Fatalf("expected data directory: %v", err)
		}
		if info.Mode().Perm() != 0o700 {
			t.Errorf("expected data directory mode 0700, got %o", info.Mode().Perm())
		}
	})

	t.Run("second install leaves files untouched", func(t *testing.T) {
		t.Parallel()

		cfg := resourceConfig(t)
		r := NewFileResources(cfg)
		if err := r.InstallStaticResources(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		geoip := filepath.Join(cfg.DataDir, "geoip")
		if err := os.WriteFile(geoip, []byte("local copy"), 0o600); err != nil {
			t.Fatalf("failed to modify geoip: %v", err)
		}
		if err := os.WriteFile(cfg.TorrcPath(), []byte("# hand edited\n"), 0o600); err != nil {
			t.Fatalf("failed to modify torrc: %v", err)
		}
		old := time.Now().Add(-time.Hour)
		if err := os.Chtimes(geoip, old, old); err != nil {
			t.Fatalf("failed to set mtime: %v", err)
		}

		if err := r.InstallStaticResources(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := readFile(t, geoip); got != "local copy" {
			t.Errorf("geoip was rewritten: %q", got)
		}
		if got := readFile(t, cfg.TorrcPath()); got != "# hand edited\n" {
			t.Errorf("torrc was rewritten: %q", got)
		}
		info, err := os.Stat(geoip)
		if err != nil {
			t.Fatalf("stat failed: %v", err)
		}
		if !info.ModTime().Equal(old) {
			t.Errorf("geoip mtime changed to %v", info.ModTime())
		}
	})

	t.Run("no resource dir skips geoip", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.DataDir = t.TempDir()
		if err := NewFileResources(cfg).InstallStaticResources(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := os.Stat(filepath.Join(cfg.DataDir, "geoip")); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected no geoip file, got %v", err)
		}
		if strings.Contains(readFile(t, cfg.TorrcPath()), "GeoIPFile") {
			t.Error("expected torrc without GeoIPFile")
		}
	})

	t.Run("incomplete resource dir is an error", func(t *testing.T) {
		t.Parallel()

		cfg := resourceConfig(t)
		if err := os.Remove(filepath.Join(cfg.ResourceDir, "geoip6")); err != nil {
			t.Fatalf("failed to remove geoip6: %v", err)
		}

		err := NewFileResources(cfg).InstallStaticResources()
		if !errors.Is(err, ErrResource) {
			t.Fatalf("expected ErrResource, got %v", err)
		}
		if _, statErr := os.Stat(filepath.Join(cfg.DataDir, "geoip6")); !errors.Is(statErr, os.ErrNotExist) {
			t.Error("expected no partial geoip6 file")
		}
	})
}

// TestLocateProxyBinary tests binary validation.
func TestLocateProxyBinary(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	executable := filepath.Join(dir, "tor")
	if err := os.WriteFile(executable, []byte("#!/bin/sh\n"), 0o700); err != nil { //nolint:gosec // must be executable
		t.Fatalf("failed to write binary: %v", err)
	}
	plain := filepath.Join(dir, "tor.txt")
	if err := os.WriteFile(plain, []byte("not a binary"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	testCases := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"executable file", executable, false},
		{"missing file", filepath.Join(dir, "missing"), true},
		{"not executable", plain, true},
		{"directory", dir, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.NewConfig()
			cfg.BinaryPath = tc.path

			got, err := NewFileResources(cfg).LocateProxyBinary()
			if tc.wantErr {
				if !errors.Is(err, ErrResource) {
					t.Errorf("expected ErrResource, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.path {
				t.Errorf("expected %q, got %q", tc.path, got)
			}
		})
	}
}

// TestRenderTorrc tests the generated torrc.
func TestRenderTorrc(t *testing.T) {
	t.Parallel()

	t.Run("without bridges", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.DataDir = "/srv/tor"

		out, err := RenderTorrc(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		torrc := string(out)

		for _, want := range []string{
			"DataDirectory /srv/tor/data\n",
			"CookieAuthentication 1\n",
			"CookieAuthFile /srv/tor/data/control_auth_cookie\n",
		} {
			if !strings.Contains(torrc, want) {
				t.Errorf("expected %q in torrc:\n%s", want, torrc)
			}
		}
		if strings.Contains(torrc, "UseBridges") {
			t.Error("expected no UseBridges without bridges")
		}
		if strings.Contains(torrc, "SocksPort") || strings.Contains(torrc, "ControlPort") {
			t.Error("ports belong on the command line")
		}
	})

	t.Run("with bridges", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.DataDir = "/srv/tor"
		cfg.Bridges = []string{
			"obfs4 192.0.2.1:443 AAAA cert=abc iat-mode=0",
			"  ",
			"192.0.2.2:9001\nControlPort 0.0.0.0:9051",
		}

		out, err := RenderTorrc(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		torrc := string(out)

		if !strings.Contains(torrc, "UseBridges 1\n") {
			t.Errorf("expected UseBridges 1:\n%s", torrc)
		}
		if !strings.Contains(torrc, "Bridge obfs4 192.0.2.1:443 AAAA cert=abc iat-mode=0\n") {
			t.Errorf("expected obfs4 bridge line:\n%s", torrc)
		}
		if !strings.Contains(torrc, "Bridge 192.0.2.2:9001 ControlPort 0.0.0.0:9051\n") {
			t.Errorf("expected newline folded into one bridge line:\n%s", torrc)
		}
		if got := strings.Count(torrc, "Bridge "); got != 2 {
			t.Errorf("expected 2 bridge lines, got %d", got)
		}
	})
}

// TestArgs tests the Tor command line.
func TestArgs(t *testing.T) {
	t.Parallel()

	cfg := config.NewConfig()
	cfg.DataDir = "/srv/tor"

	want := []string{
		"-f", "/srv/tor/torrc",
		"--clientonly", "1",
		"--socksport", "39059",
		"--controlport", "127.0.0.1:39069",
		"--clientuseipv6", "1",
	}
	got := Args(cfg)
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("expected %v, got %v", want, got)
	}
}

// TestExecLauncher runs a short shell script as the process.
func TestExecLauncher(t *testing.T) {
	t.Parallel()

	sh, err := os.Stat("/bin/sh")
	if err != nil || sh.IsDir() {
		t.Skip("/bin/sh not available")
	}

	t.Run("waits for exit status", func(t *testing.T) {
		t.Parallel()

		l := &ExecLauncher{Dir: t.TempDir()}
		proc, err := l.Launch(context.Background(), "/bin/sh", []string{"-c", "echo bootstrapped; echo warning >&2; exit 3"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if proc.Pid() <= 0 {
			t.Errorf("expected a pid, got %d", proc.Pid())
		}
		if err := proc.Wait(); err == nil {
			t.Error("expected exit status error")
		}
	})

	t.Run("interrupt stops the process", func(t *testing.T) {
		t.Parallel()

		l := &ExecLauncher{}
		proc, err := l.Launch(context.Background(), "/bin/sh", []string{"-c", "exec sleep 30"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := proc.Signal(os.Interrupt); err != nil {
			t.Fatalf("signal failed: %v", err)
		}

		done := make(chan error, 1)
		go func() { done <- proc.Wait() }()
		select {
		case <-done:
		case <-time.After(waitTimeout):
			_ = proc.Signal(os.Kill)
			t.Fatal("process did not exit after interrupt")
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := (&ExecLauncher{}).Launch(ctx, "/bin/sh", nil); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("missing binary", func(t *testing.T) {
		t.Parallel()

		if _, err := (&ExecLauncher{}).Launch(context.Background(), filepath.Join(t.TempDir(), "tor"), nil); err == nil {
			t.Error("expected error for missing binary")
		}
	})
}

// TestCookieFingerprint verifies fingerprints are short and stable.
func TestCookieFingerprint(t *testing.T) {
	t.Parallel()

	a := cookieFingerprint([]byte("cookie-a"))
	if len(a) != 16 {
		t.Errorf("expected 16 hex chars, got %q", a)
	}
	if a != cookieFingerprint([]byte("cookie-a")) {
		t.Error("expected a stable fingerprint")
	}
	if a == cookieFingerprint([]byte("cookie-b")) {
		t.Error("expected different cookies to differ")
	}
}
