// Package config loads the adapter configuration from the environment
// and an optional .env-style file.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the adapter.
type Config struct {
	DeepLynx struct {
		URL         string
		APIKey      string
		APISecret   string
		TokenExpiry string
	}

	// ContainerName is the store container this adapter works in.
	ContainerName string

	// DataSourceName is the adapter's own identity: the name of the
	// data source it imports results under, and the modifiedUser it
	// stamps on events.
	DataSourceName string

	// DataSources are the upstream source names to subscribe to for
	// data_ingested events.
	DataSources []string

	// DataDir is the directory artifact files are exchanged in.
	DataDir string

	// QueryFileName and ImportFileName are the artifact files the
	// watcher waits for, relative to DataDir.
	QueryFileName  string
	ImportFileName string

	// GraphQLQuery is the query sent to the store at the top of each
	// run. When empty, the store's own query mechanism is assumed to
	// produce the query artifact.
	GraphQLQuery string

	QueryFileWait  time.Duration
	ImportFileWait time.Duration

	RegisterWait     time.Duration
	RegisterAttempts int

	Callback struct {
		Host string
		Port int
	}

	Notebook struct {
		Path   string
		Kernel string
	}

	Log struct {
		File     string
		ToStdout bool
	}

	TLS struct {
		Enable    bool
		CertFile  string
		KeyFile   string
		Hostnames []string
	}
}

// Load reads configuration from envFile (when non-empty) and the
// process environment. Environment variables win over the file.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("env")
	v.AutomaticEnv()

	setDefaults(v)

	if envFile != "" {
		v.SetConfigFile(envFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	cfg.DeepLynx.URL = strings.TrimRight(v.GetString("DEEP_LYNX_URL"), "/")
	cfg.DeepLynx.APIKey = v.GetString("DEEP_LYNX_API_KEY")
	cfg.DeepLynx.APISecret = v.GetString("DEEP_LYNX_API_SECRET")
	cfg.DeepLynx.TokenExpiry = v.GetString("DEEP_LYNX_TOKEN_EXPIRY")
	cfg.ContainerName = v.GetString("CONTAINER_NAME")
	cfg.DataSourceName = v.GetString("DATA_SOURCE_NAME")
	cfg.DataSources = splitList(v.GetString("DATA_SOURCES"))
	cfg.DataDir = v.GetString("DATA_DIR")
	cfg.QueryFileName = v.GetString("QUERY_FILE_NAME")
	cfg.ImportFileName = v.GetString("IMPORT_FILE_NAME")
	cfg.GraphQLQuery = v.GetString("GRAPHQL_QUERY")
	cfg.QueryFileWait = time.Duration(v.GetInt("QUERY_FILE_WAIT_SECONDS")) * time.Second
	cfg.ImportFileWait = time.Duration(v.GetInt("IMPORT_FILE_WAIT_SECONDS")) * time.Second
	cfg.RegisterWait = time.Duration(v.GetInt("REGISTER_WAIT_SECONDS")) * time.Second
	cfg.RegisterAttempts = v.GetInt("REGISTER_ATTEMPTS")
	cfg.Callback.Host = v.GetString("CALLBACK_HOST")
	cfg.Callback.Port = v.GetInt("CALLBACK_PORT")
	cfg.Notebook.Path = v.GetString("NOTEBOOK_PATH")
	cfg.Notebook.Kernel = v.GetString("NOTEBOOK_KERNEL")
	cfg.Log.File = v.GetString("LOG_FILE")
	cfg.Log.ToStdout = v.GetBool("LOG_TO_STDOUT")
	cfg.TLS.Enable = v.GetBool("TLS_ENABLE")
	cfg.TLS.CertFile = v.GetString("TLS_CERT_FILE")
	cfg.TLS.KeyFile = v.GetString("TLS_KEY_FILE")
	cfg.TLS.Hostnames = splitList(v.GetString("TLS_HOSTNAMES"))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DEEP_LYNX_TOKEN_EXPIRY", "12h")
	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("REGISTER_ATTEMPTS", 30)
	v.SetDefault("CALLBACK_HOST", "127.0.0.1")
	v.SetDefault("CALLBACK_PORT", 8080)
	v.SetDefault("NOTEBOOK_KERNEL", "python3")
	v.SetDefault("LOG_FILE", "MLAdapter.log")
	v.SetDefault("LOG_TO_STDOUT", true)
}

// validate rejects configurations the wait loops cannot run with. A
// zero or negative poll interval has to fail here, not mid-loop.
func (c *Config) validate() error {
	if c.DeepLynx.URL == "" {
		return fmt.Errorf("DEEP_LYNX_URL is required")
	}
	if c.ContainerName == "" {
		return fmt.Errorf("CONTAINER_NAME is required")
	}
	if c.DataSourceName == "" {
		return fmt.Errorf("DATA_SOURCE_NAME is required")
	}
	if c.QueryFileName == "" || c.ImportFileName == "" {
		return fmt.Errorf("QUERY_FILE_NAME and IMPORT_FILE_NAME are required")
	}
	if c.QueryFileWait <= 0 {
		return fmt.Errorf("QUERY_FILE_WAIT_SECONDS must be positive, got %s", c.QueryFileWait)
	}
	if c.ImportFileWait <= 0 {
		return fmt.Errorf("IMPORT_FILE_WAIT_SECONDS must be positive, got %s", c.ImportFileWait)
	}
	if c.RegisterWait <= 0 {
		return fmt.Errorf("REGISTER_WAIT_SECONDS must be positive, got %s", c.RegisterWait)
	}
	if c.RegisterAttempts <= 0 {
		return fmt.Errorf("REGISTER_ATTEMPTS must be positive, got %d", c.RegisterAttempts)
	}
	return nil
}

// CallbackURL is the URL the store delivers data_ingested events to.
func (c *Config) CallbackURL() string {
	scheme := "http"
	if c.TLS.Enable {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d/events", scheme, c.Callback.Host, c.Callback.Port)
}

// splitList parses a list given either as a JSON array, the form the
// store's own .env files use, or as comma-separated names. Whitespace
// is trimmed and empty entries dropped.
func splitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var parts []string
	if strings.HasPrefix(s, "[") {
		if err := json.Unmarshal([]byte(s), &parts); err != nil {
			return nil
		}
	} else {
		parts = strings.Split(s, ",")
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
