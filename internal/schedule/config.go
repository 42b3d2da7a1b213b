package schedule

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// GeolocationPath is the geoclue-style static location file consulted when
// the configuration carries no coordinates.
var GeolocationPath = "/etc/geolocation"

// Config is the on-disk schedule configuration.
type Config struct {
	Latitude    *float64 `yaml:"lat"`
	Longitude   *float64 `yaml:"lon"`
	Timezone    string   `yaml:"tz"`
	ForceOn     bool     `yaml:"force_on"`
	ButtonDelay Delay    `yaml:"button_delay"`
	Entries     []Entry  `yaml:"schedule"`
}

// Delay is a duration given either as "HH:MM" or as a Go duration string.
type Delay time.Duration

func (d *Delay) UnmarshalYAML(node *yaml.Node) error {
	if t, err := time.Parse("15:04", node.Value); err == nil {
		*d = Delay(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
		return nil
	}
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return &ParseError{Expr: node.Value, Reason: "expected HH:MM or duration"}
	}
	*d = Delay(v)
	return nil
}

// Load reads a YAML schedule configuration and builds a Schedule from it.
// Malformed time expressions fail the whole load.
func Load(r io.Reader, logger *slog.Logger) (*Schedule, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("schedule configuration: %w", err)
	}
	return New(cfg, logger)
}

// ReadGeolocation parses a geoclue-2.0 static location file: latitude on the
// first data line, longitude on the second, comments and blank lines skipped.
func ReadGeolocation(path string) (Observer, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Observer{}, err
	}

	var values []float64
	for _, line := range strings.Split(string(content), "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return Observer{}, fmt.Errorf("geolocation file %s: %w", path, err)
		}
		if values = append(values, v); len(values) == 2 {
			break
		}
	}
	if len(values) < 2 {
		return Observer{}, fmt.Errorf("geolocation file %s: need latitude and longitude", path)
	}

	obs := Observer{Latitude: values[0], Longitude: values[1]}
	if !obs.valid() {
		return Observer{}, fmt.Errorf("geolocation file %s: coordinates out of range", path)
	}
	return obs, nil
}
