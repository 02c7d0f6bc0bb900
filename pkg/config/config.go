// Package config loads the basemapper run configuration and API credentials.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default locations and endpoints, matching the layout the pipeline has
// always used.
const (
	DefaultDownloadDir     = "./basemaps"
	DefaultInventoryDir    = "./inventories"
	DefaultCredentialsPath = "./key.json"
	DefaultCatalogURL      = "https://api.planet.com/basemaps/v1/mosaics"

	DefaultAreaLayer = "area"
)

// Config is the full run configuration loaded from YAML.
type Config struct {
	// DownloadDir is the root directory for quads, merged mosaics, and DTMs.
	DownloadDir string `yaml:"download_dir"`

	// InventoryDir holds one GeoPackage per inventory (<name>.gpkg).
	InventoryDir string `yaml:"inventory_dir"`

	// CredentialsPath is the JSON file holding the catalog API key.
	CredentialsPath string `yaml:"credentials"`

	// CatalogURL is the basemaps catalog endpoint.
	CatalogURL string `yaml:"catalog_url"`

	// Elevation configures the optional DTM enrichment step.
	Elevation ElevationConfig `yaml:"elevation"`

	// Inventories lists the study areas to process.
	Inventories []Inventory `yaml:"inventories"`
}

// ElevationConfig configures the external elevation service used for DTM clips.
type ElevationConfig struct {
	// Enabled toggles DTM enrichment. Defaults to true.
	Enabled *bool `yaml:"enabled"`

	// BaseURL is the global-DEM clip endpoint.
	BaseURL string `yaml:"base_url"`

	// DEMType selects the elevation dataset (e.g. SRTMGL3).
	DEMType string `yaml:"dem_type"`

	// APIKey authenticates against the elevation service, if it requires one.
	APIKey string `yaml:"api_key"`
}

// IsEnabled reports whether DTM enrichment should run.
func (e ElevationConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// Inventory is one named study area with its event dates.
type Inventory struct {
	// Name is the unique inventory key; the area GeoPackage is <Name>.gpkg
	// and all outputs go under <download_dir>/<Name>/.
	Name string `yaml:"name"`

	// AreaLayer is the layer inside the GeoPackage holding the study-area
	// polygon. Defaults to "area".
	AreaLayer string `yaml:"area_layer"`

	// EventDates are the landslide-triggering event dates, ascending.
	EventDates []Date `yaml:"event_dates"`
}

// Dates returns the event dates as time values.
func (inv Inventory) Dates() []time.Time {
	out := make([]time.Time, len(inv.EventDates))
	for i, d := range inv.EventDates {
		out[i] = d.Time
	}
	return out
}

// Date is a calendar date parsed from a YYYY-MM-DD YAML scalar.
type Date struct {
	time.Time
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Date) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Date) MarshalYAML() (interface{}, error) {
	return d.Format("2006-01-02"), nil
}

// Load reads, defaults, and validates a run configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills zero-valued fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.DownloadDir == "" {
		c.DownloadDir = DefaultDownloadDir
	}
	if c.InventoryDir == "" {
		c.InventoryDir = DefaultInventoryDir
	}
	if c.CredentialsPath == "" {
		c.CredentialsPath = DefaultCredentialsPath
	}
	if c.CatalogURL == "" {
		c.CatalogURL = DefaultCatalogURL
	}
	for i := range c.Inventories {
		if c.Inventories[i].AreaLayer == "" {
			c.Inventories[i].AreaLayer = DefaultAreaLayer
		}
	}
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	if len(c.Inventories) == 0 {
		return errors.New("no inventories configured")
	}

	seen := make(map[string]bool, len(c.Inventories))
	for _, inv := range c.Inventories {
		if inv.Name == "" {
			return errors.New("inventory with empty name")
		}
		if seen[inv.Name] {
			return fmt.Errorf("duplicate inventory name %q", inv.Name)
		}
		seen[inv.Name] = true

		if len(inv.EventDates) == 0 {
			return fmt.Errorf("inventory %q has no event dates", inv.Name)
		}
		for i := 1; i < len(inv.EventDates); i++ {
			if inv.EventDates[i].Before(inv.EventDates[i-1].Time) {
				return fmt.Errorf("inventory %q event dates not ascending", inv.Name)
			}
		}
	}
	return nil
}

// credentials is the shape of the key file.
type credentials struct {
	APIKey string `json:"apiKey"`
}

// LoadCredentials reads the catalog API key from a JSON file of the form
// {"apiKey": "..."}.
func LoadCredentials(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read credentials: %w", err)
	}

	var creds credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return "", fmt.Errorf("parse credentials: %w", err)
	}
	if creds.APIKey == "" {
		return "", errors.New("credentials file has empty apiKey")
	}
	return creds.APIKey, nil
}
