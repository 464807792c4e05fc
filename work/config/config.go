package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"streamhub/work/types"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the server looks for its settings when no --config flag is given.
const DefaultPath = "/settings/config.json"

// DefaultUserAgent is a browser-like User-Agent; many media origins reject requests
// that do not look like they came from a player embedded in a web page.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config holds all application configuration values for the aggregation engine.
// It includes search fan-out limits, proxy timeouts, logging, and the seed lists of
// catalog and live sources written to the store on first start.
type Config struct {
	Listen              string                 // Address the HTTP server binds to
	Debug               bool                   // Enable debug logging
	LogLevel            string                 // DEBUG, INFO, WARN or ERROR
	LogFile             string                 // Optional rotating log file
	LogMaxSizeMB        int                    // Rotate the log file after this many megabytes
	LogMaxBackups       int                    // Rotated log files to keep
	ObfuscateUrls       bool                   // Obfuscate URLs in logs
	WorkerThreads       int                    // Size of the shared fan-out worker pool
	DatabasePath        string                 // sqlite database holding sources and channel lists
	UserAgent           string                 // Default upstream User-Agent
	SearchTimeout       time.Duration          // Per-source search timeout
	SupplementalTimeout time.Duration          // Timeout for the low-priority supplemental source
	ManifestTimeout     time.Duration          // Overall timeout for manifest fetches
	SegmentTimeout      time.Duration          // Response header timeout for segment and key fetches
	ChannelTimeout      time.Duration          // Timeout for live-source channel list fetches
	MaxResultsPerSource int                    // Per-source contribution cap before merge
	SearchPages         int                    // Pages configured; total cap is pages * 20
	FilterDenylist      []string               // Category substrings removed from results
	SearchCacheTTL      time.Duration          // TTL of the non-streaming search cache, zero disables it
	SourceRateLimit     int                    // Requests per second allowed against one upstream source
	AutoRefresh         *bool                  // Auto-refresh default when nothing is stored
	RefreshInterval     time.Duration          // Interval between automatic live-source refreshes
	Sources             []types.CatalogSource  // Catalog sources seeded into the store
	Supplemental        *SupplementalSource    // Optional low-priority supplemental source
	LiveSources         []types.LiveSource     // Live sources seeded into the store
}

// SupplementalSource is the designated low-priority source queried when the primary
// fan-out leaves free result slots. It speaks a different API family than the catalogs.
type SupplementalSource struct {
	Key  string `json:"key" yaml:"key"`
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"` // Query appended as ?q=<query>
}

// ConfigFile represents the on-disk structure, JSON or YAML. Durations are strings
// (e.g. "20s") parsed into time.Duration values by convertFromFile.
type ConfigFile struct {
	Listen              string                `json:"listen" yaml:"listen"`
	Debug               bool                  `json:"debug" yaml:"debug"`
	LogLevel            string                `json:"logLevel" yaml:"logLevel"`
	LogFile             string                `json:"logFile" yaml:"logFile"`
	LogMaxSizeMB        int                   `json:"logMaxSizeMB" yaml:"logMaxSizeMB"`
	LogMaxBackups       int                   `json:"logMaxBackups" yaml:"logMaxBackups"`
	ObfuscateUrls       bool                  `json:"obfuscateUrls" yaml:"obfuscateUrls"`
	WorkerThreads       int                   `json:"workerThreads" yaml:"workerThreads"`
	DatabasePath        string                `json:"databasePath" yaml:"databasePath"`
	UserAgent           string                `json:"userAgent" yaml:"userAgent"`
	SearchTimeout       string                `json:"searchTimeout" yaml:"searchTimeout"`
	SupplementalTimeout string                `json:"supplementalTimeout" yaml:"supplementalTimeout"`
	ManifestTimeout     string                `json:"manifestTimeout" yaml:"manifestTimeout"`
	SegmentTimeout      string                `json:"segmentTimeout" yaml:"segmentTimeout"`
	ChannelTimeout      string                `json:"channelTimeout" yaml:"channelTimeout"`
	MaxResultsPerSource int                   `json:"maxResultsPerSource" yaml:"maxResultsPerSource"`
	SearchPages         int                   `json:"searchPages" yaml:"searchPages"`
	FilterDenylist      []string              `json:"filterDenylist" yaml:"filterDenylist"`
	SearchCacheTTL      string                `json:"searchCacheTTL" yaml:"searchCacheTTL"`
	SourceRateLimit     int                   `json:"sourceRateLimit" yaml:"sourceRateLimit"`
	AutoRefresh         *bool                 `json:"autoRefresh" yaml:"autoRefresh"`
	RefreshInterval     string                `json:"refreshInterval" yaml:"refreshInterval"`
	Sources             []types.CatalogSource `json:"sources" yaml:"sources"`
	Supplemental        *SupplementalSource   `json:"supplemental" yaml:"supplemental"`
	LiveSources         []types.LiveSource    `json:"liveSources" yaml:"liveSources"`
}

var (
	configCache *Config      // Cached configuration instance
	configMutex sync.RWMutex // Guards configCache
)

// LoadConfig loads the configuration from path (DefaultPath when empty) or returns
// the cached instance. A missing or invalid file falls back to the defaults.
func LoadConfig(path string) *Config {
	configMutex.RLock()
	if configCache != nil {
		defer configMutex.RUnlock()
		return configCache
	}
	configMutex.RUnlock()

	configMutex.Lock()
	defer configMutex.Unlock()

	// double-check under write lock
	if configCache != nil {
		return configCache
	}

	if path == "" {
		path = DefaultPath
	}

	config, err := loadFromFile(path)
	if err != nil {
		log.Printf("Failed to load config from %s: %v", path, err)
		log.Printf("Falling back to default configuration...")
		config = getDefaultConfig()
	}

	validateAndSetDefaults(config)
	configCache = config

	return config
}

// loadFromFile reads and parses the configuration file. The format is sniffed from
// the content: a leading '{' means JSON, anything else is treated as YAML.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var configFile ConfigFile
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		if err := json.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	return convertFromFile(&configFile)
}

// parseDuration parses an optional duration string; empty yields zero so that
// validateAndSetDefaults can fill it in.
func parseDuration(name, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return d, nil
}

// convertFromFile converts a ConfigFile to Config, parsing duration strings.
func convertFromFile(cf *ConfigFile) (*Config, error) {
	config := &Config{
		Listen:              cf.Listen,
		Debug:               cf.Debug,
		LogLevel:            cf.LogLevel,
		LogFile:             cf.LogFile,
		LogMaxSizeMB:        cf.LogMaxSizeMB,
		LogMaxBackups:       cf.LogMaxBackups,
		ObfuscateUrls:       cf.ObfuscateUrls,
		WorkerThreads:       cf.WorkerThreads,
		DatabasePath:        cf.DatabasePath,
		UserAgent:           cf.UserAgent,
		MaxResultsPerSource: cf.MaxResultsPerSource,
		SearchPages:         cf.SearchPages,
		FilterDenylist:      cf.FilterDenylist,
		SourceRateLimit:     cf.SourceRateLimit,
		AutoRefresh:         cf.AutoRefresh,
		Sources:             cf.Sources,
		Supplemental:        cf.Supplemental,
		LiveSources:         cf.LiveSources,
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"searchTimeout", cf.SearchTimeout, &config.SearchTimeout},
		{"supplementalTimeout", cf.SupplementalTimeout, &config.SupplementalTimeout},
		{"manifestTimeout", cf.ManifestTimeout, &config.ManifestTimeout},
		{"segmentTimeout", cf.SegmentTimeout, &config.SegmentTimeout},
		{"channelTimeout", cf.ChannelTimeout, &config.ChannelTimeout},
		{"searchCacheTTL", cf.SearchCacheTTL, &config.SearchCacheTTL},
		{"refreshInterval", cf.RefreshInterval, &config.RefreshInterval},
	}
	for _, d := range durations {
		parsed, err := parseDuration(d.name, d.value)
		if err != nil {
			return nil, err
		}
		*d.dst = parsed
	}

	return config, nil
}

// getDefaultConfig returns a baseline configuration used when no file is present.
func getDefaultConfig() *Config {
	return &Config{
		Listen:              ":8080",
		LogLevel:            "INFO",
		WorkerThreads:       32,
		DatabasePath:        "/settings/streamhub.db",
		UserAgent:           DefaultUserAgent,
		SearchTimeout:       20 * time.Second,
		SupplementalTimeout: 15 * time.Second,
		ManifestTimeout:     30 * time.Second,
		SegmentTimeout:      30 * time.Second,
		ChannelTimeout:      30 * time.Second,
		MaxResultsPerSource: 5,
		SearchPages:         1,
		SearchCacheTTL:      5 * time.Minute,
		SourceRateLimit:     10,
		RefreshInterval:     12 * time.Hour,
		Sources:             []types.CatalogSource{},
		LiveSources:         []types.LiveSource{},
	}
}

// validateAndSetDefaults fills in defaults for missing or invalid values.
func validateAndSetDefaults(config *Config) {
	def := getDefaultConfig()

	if config.Listen == "" {
		config.Listen = def.Listen
	}
	if config.LogLevel == "" {
		config.LogLevel = def.LogLevel
		if config.Debug {
			config.LogLevel = "DEBUG"
		}
	}
	if config.LogMaxSizeMB <= 0 {
		config.LogMaxSizeMB = 100
	}
	if config.WorkerThreads <= 0 {
		config.WorkerThreads = def.WorkerThreads
	}
	if config.DatabasePath == "" {
		config.DatabasePath = def.DatabasePath
	}
	if config.UserAgent == "" {
		config.UserAgent = def.UserAgent
	}
	if config.SearchTimeout <= 0 {
		config.SearchTimeout = def.SearchTimeout
	}
	if config.SupplementalTimeout <= 0 {
		config.SupplementalTimeout = def.SupplementalTimeout
	}
	if config.ManifestTimeout <= 0 {
		config.ManifestTimeout = def.ManifestTimeout
	}
	if config.SegmentTimeout <= 0 {
		config.SegmentTimeout = def.SegmentTimeout
	}
	if config.ChannelTimeout <= 0 {
		config.ChannelTimeout = def.ChannelTimeout
	}
	if config.MaxResultsPerSource <= 0 {
		config.MaxResultsPerSource = def.MaxResultsPerSource
	}
	if config.SearchPages <= 0 {
		config.SearchPages = def.SearchPages
	}
	if config.SearchCacheTTL < 0 {
		config.SearchCacheTTL = 0
	}
	if config.SourceRateLimit <= 0 {
		config.SourceRateLimit = def.SourceRateLimit
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = def.RefreshInterval
	}

	for i := range config.Sources {
		src := &config.Sources[i]
		if src.Key == "" {
			src.Key = fmt.Sprintf("source_%d", i+1)
		}
		if src.Name == "" {
			src.Name = src.Key
		}
	}
	for i := range config.LiveSources {
		src := &config.LiveSources[i]
		if src.Key == "" {
			src.Key = fmt.Sprintf("live_%d", i+1)
		}
		if src.Name == "" {
			src.Name = src.Key
		}
	}
	if config.Supplemental != nil && config.Supplemental.URL == "" {
		config.Supplemental = nil
	}
	if config.Supplemental != nil && config.Supplemental.Key == "" {
		config.Supplemental.Key = "supplemental"
	}
}

// MaxTotalResults is the overall cap on merged search results.
func (c *Config) MaxTotalResults() int {
	return c.SearchPages * 20
}

// ResolveAutoRefresh decides whether live sources refresh automatically. An explicit
// runtime override always wins, then the stored setting, then the config file, then false.
func ResolveAutoRefresh(override, stored, configured *bool) bool {
	switch {
	case override != nil:
		return *override
	case stored != nil:
		return *stored
	case configured != nil:
		return *configured
	default:
		return false
	}
}

// ClearConfigCache forces a reload on the next LoadConfig call.
func ClearConfigCache() {
	configMutex.Lock()
	defer configMutex.Unlock()
	configCache = nil
}

// CreateExampleConfig writes an example JSON config file to path.
func CreateExampleConfig(path string) error {
	enabled := true
	example := ConfigFile{
		Listen:              ":8080",
		LogLevel:            "INFO",
		WorkerThreads:       32,
		DatabasePath:        "/settings/streamhub.db",
		SearchTimeout:       "20s",
		SupplementalTimeout: "15s",
		ManifestTimeout:     "30s",
		SegmentTimeout:      "30s",
		ChannelTimeout:      "30s",
		MaxResultsPerSource: 5,
		SearchPages:         1,
		FilterDenylist:      []string{"伦理", "福利"},
		SearchCacheTTL:      "5m",
		SourceRateLimit:     10,
		AutoRefresh:         &enabled,
		RefreshInterval:     "12h",
		Sources: []types.CatalogSource{
			{Key: "primary", Name: "Primary Catalog", API: "https://catalog.example.com/api.php/provide/vod"},
			{Key: "backup", Name: "Backup Catalog", API: "https://backup.example.com/api.php/provide/vod"},
		},
		Supplemental: &SupplementalSource{Key: "extra", Name: "Supplemental", URL: "https://extra.example.com/search"},
		LiveSources: []types.LiveSource{
			{Key: "iptv", Name: "IPTV", URL: "https://iptv.example.com/list.m3u"},
		},
	}

	data, err := json.MarshalIndent(example, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
