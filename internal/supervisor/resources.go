package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/i1skn/ironbelly-sub000/internal/config"
)

// ResourceLocator prepares the data directory and finds the Tor binary.
type ResourceLocator interface {
	// InstallStaticResources makes sure the files Tor needs are in place.
	// Files that already exist are left untouched.
	InstallStaticResources() error

	// LocateProxyBinary returns the path of an executable Tor binary.
	LocateProxyBinary() (string, error)
}

// GeoIP file names, both in the resource directory and the data directory.
const (
	geoIPFile   = "geoip"
	geoIPv6File = "geoip6"
)

// FileResources is the ResourceLocator for a plain filesystem layout:
// GeoIP files are copied from cfg.ResourceDir, torrc is generated from cfg,
// and the binary is cfg.BinaryPath or "tor" on PATH.
type FileResources struct {
	cfg *config.Config
}

// NewFileResources returns a FileResources for cfg.
func NewFileResources(cfg *config.Config) *FileResources {
	return &FileResources{cfg: cfg}
}

// InstallStaticResources creates the data directory, copies the GeoIP
// databases and writes torrc. Every file is written only when absent.
func (r *FileResources) InstallStaticResources() error {
	// Tor refuses a DataDirectory readable by others.
	if err := os.MkdirAll(filepath.Join(r.cfg.DataDir, "data"), 0o700); err != nil {
		return fmt.Errorf("%w: create data directory: %w", ErrResource, err)
	}

	if r.cfg.ResourceDir != "" {
		for _, name := range []string{geoIPFile, geoIPv6File} {
			src := filepath.Join(r.cfg.ResourceDir, name)
			dst := filepath.Join(r.cfg.DataDir, name)
			if err := copyIfAbsent(src, dst); err != nil {
				return fmt.Errorf("%w: install %s: %w", ErrResource, name, err)
			}
		}
	}

	if err := writeTorrcIfAbsent(r.cfg); err != nil {
		return fmt.Errorf("%w: write torrc: %w", ErrResource, err)
	}
	return nil
}

// LocateProxyBinary returns the configured binary, or "tor" from PATH.
// The file must exist, be a regular file and be executable.
func (r *FileResources) LocateProxyBinary() (string, error) {
	path := r.cfg.BinaryPath
	if path == "" {
		found, err := exec.LookPath(config.DefaultBinaryName)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrResource, err)
		}
		path = found
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: tor binary: %w", ErrResource, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: tor binary %s is not a regular file", ErrResource, path)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return "", fmt.Errorf("%w: tor binary %s is not executable", ErrResource, path)
	}
	return path, nil
}

// copyIfAbsent copies src to dst unless dst exists. A missing src is an
// error: the resource directory was configured but is incomplete.
func copyIfAbsent(src, dst string) (err error) {
	if _, statErr := os.Stat(dst); statErr == nil {
		return nil
	} else if !errors.Is(statErr, os.ErrNotExist) {
		return statErr
	}

	in, err := os.Open(src) //nolint:gosec // path built from configured resource dir
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) //nolint:gosec // path built from configured data dir
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	_, err = io.Copy(out, in)
	return err
}
