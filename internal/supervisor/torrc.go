package supervisor

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/i1skn/ironbelly-sub000/internal/config"
)

var torrcTemplate = template.Must(template.New("torrc").Parse(`# Generated by ironbelly-tor. Edit freely; it is not overwritten.
DataDirectory {{.DataDirectory}}
CookieAuthentication 1
CookieAuthFile {{.CookieAuthFile}}
{{- if .GeoIP}}
GeoIPFile {{.GeoIP}}
GeoIPv6File {{.GeoIPv6}}
{{- end}}
{{- if .Bridges}}
UseBridges 1
{{- range .Bridges}}
Bridge {{.}}
{{- end}}
{{- end}}
`))

type torrcData struct {
	DataDirectory  string
	CookieAuthFile string
	GeoIP          string
	GeoIPv6        string
	Bridges        []string
}

// RenderTorrc returns the torrc for cfg. Ports are passed on the command
// line and are not part of the file.
func RenderTorrc(cfg *config.Config) ([]byte, error) {
	data := torrcData{
		DataDirectory:  filepath.Join(cfg.DataDir, "data"),
		CookieAuthFile: cfg.CookiePath(),
	}
	if cfg.ResourceDir != "" {
		data.GeoIP = filepath.Join(cfg.DataDir, geoIPFile)
		data.GeoIPv6 = filepath.Join(cfg.DataDir, geoIPv6File)
	}
	for _, b := range cfg.Bridges {
		// One bridge per line; a stray newline would inject options.
		b = strings.Join(strings.Fields(b), " ")
		if b != "" {
			data.Bridges = append(data.Bridges, b)
		}
	}

	var buf bytes.Buffer
	if err := torrcTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeTorrcIfAbsent(cfg *config.Config) error {
	path := cfg.TorrcPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	content, err := RenderTorrc(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o600)
}
