package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// Common errors
var (
	ErrMissingDestination = errors.New("destination dataset is required (param 0 or DESTINATION_DATASET)")
	ErrMissingTracts      = errors.New("tract geometry dataset is required (param 1 or TRACTS_DATASET)")
	ErrMissingKey         = errors.New("census API key is required (param 2 or CENSUS_API_KEY)")
	ErrMissingFields      = errors.New("at least one ACS field code is required (param 3 or ACS_FIELDS)")
	ErrMissingYear        = errors.New("ACS survey year is required (param 4 or ACS_YEAR)")
	ErrMissingDatabaseURL = errors.New("DATABASE_URL environment variable is required")
	ErrInvalidField       = errors.New("invalid ACS field code")
)

var fieldCodePattern = regexp.MustCompile(`^[A-Z0-9_]+$`)

const (
	// DefaultStateFIPS is Wisconsin.
	DefaultStateFIPS = "55"

	// DefaultBoundaryURL is the WEM public state boundary endpoint.
	DefaultBoundaryURL = "https://widmamaps.us/dma/rest/services/WEM/WI_State_Boundary/MapServer/0/query?where=STATE_FIPS+%3D+55&geometryType=esriGeometryEnvelope&spatialRel=esriSpatialRelIntersects&returnGeometry=true&f=pjson"

	DefaultFetchTimeout = 10 * time.Second
)

// Config holds one run of the tract updater.
type Config struct {
	// The five tool parameters, in dialog order.
	Destination string
	Tracts      string
	APIKey      string
	Fields      []string
	Year        string

	DatabaseURL  string
	StateFIPS    string
	BoundaryURL  string
	FetchTimeout time.Duration
	TempDir      string

	// AdminTokenHash is the bcrypt hash guarding the refresh endpoint.
	AdminTokenHash string
}

// LoadFromEnv loads configuration from environment variables.
//
// Environment variables:
//   - DESTINATION_DATASET, TRACTS_DATASET, CENSUS_API_KEY, ACS_FIELDS, ACS_YEAR:
//     defaults for the five tool parameters
//   - DATABASE_URL: PostGIS connection string (required)
//   - STATE_FIPS: state to fetch tracts for (default: 55)
//   - BOUNDARY_URL: Esri JSON boundary query (default: WEM state boundary)
//   - FETCH_TIMEOUT: per-request timeout, Go duration syntax (default: 10s)
//   - TEMP_DIR: where languages.csv and clip.json are written (default: os.TempDir())
//   - ADMIN_TOKEN_HASH: bcrypt hash of the refresh endpoint token (server only)
func LoadFromEnv() Config {
	cfg := Config{
		Destination:  strings.TrimSpace(os.Getenv("DESTINATION_DATASET")),
		Tracts:       strings.TrimSpace(os.Getenv("TRACTS_DATASET")),
		APIKey:       strings.TrimSpace(os.Getenv("CENSUS_API_KEY")),
		Fields:       ParseFieldList(os.Getenv("ACS_FIELDS")),
		Year:         strings.TrimSpace(os.Getenv("ACS_YEAR")),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		StateFIPS:    strings.TrimSpace(os.Getenv("STATE_FIPS")),
		BoundaryURL:  strings.TrimSpace(os.Getenv("BOUNDARY_URL")),
		FetchTimeout: DefaultFetchTimeout,
		TempDir:      strings.TrimSpace(os.Getenv("TEMP_DIR")),

		AdminTokenHash: strings.TrimSpace(os.Getenv("ADMIN_TOKEN_HASH")),
	}

	if cfg.StateFIPS == "" {
		cfg.StateFIPS = DefaultStateFIPS
	}
	if cfg.BoundaryURL == "" {
		cfg.BoundaryURL = DefaultBoundaryURL
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if v := strings.TrimSpace(os.Getenv("FETCH_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.FetchTimeout = d
		}
	}

	return cfg
}

// ApplyParams overrides the environment defaults with positional tool
// parameters. Empty parameters keep the existing value.
func (c *Config) ApplyParams(params []string) {
	get := func(i int) string {
		if i >= len(params) {
			return ""
		}
		return strings.TrimSpace(params[i])
	}

	if v := get(0); v != "" {
		c.Destination = v
	}
	if v := get(1); v != "" {
		c.Tracts = v
	}
	if v := get(2); v != "" {
		c.APIKey = v
	}
	if v := get(3); v != "" {
		c.Fields = ParseFieldList(v)
	}
	if v := get(4); v != "" {
		c.Year = v
	}
}

// Validate checks that every value a run needs is present.
func (c Config) Validate() error {
	switch {
	case c.Destination == "":
		return ErrMissingDestination
	case c.Tracts == "":
		return ErrMissingTracts
	case c.APIKey == "":
		return ErrMissingKey
	case len(c.Fields) == 0:
		return ErrMissingFields
	case c.Year == "":
		return ErrMissingYear
	case c.DatabaseURL == "":
		return ErrMissingDatabaseURL
	}
	if !isDigits(c.Year) {
		return fmt.Errorf("invalid ACS year %q", c.Year)
	}
	if c.StateFIPS != "" && !isDigits(c.StateFIPS) {
		return fmt.Errorf("invalid state FIPS code %q", c.StateFIPS)
	}
	for _, f := range c.Fields {
		if !fieldCodePattern.MatchString(f) {
			return fmt.Errorf("%w %q", ErrInvalidField, f)
		}
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseFieldList splits the semicolon-separated field parameter the way the
// toolbox dialog hands it over. Order is preserved.
func ParseFieldList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ";") {
		if f := strings.TrimSpace(p); f != "" {
			out = append(out, f)
		}
	}
	return out
}
