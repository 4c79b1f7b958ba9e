// Package config loads manifest-sync settings from a TOML file, with command
// line flags taking precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// DefaultFile is read when no config file is given. It may be absent.
const DefaultFile = "config.toml"

// Keys understood in the config file.
const (
	KeyManifestURL           = "manifest_url"
	KeyDownloadDir           = "download_dir"
	KeyAria2cPath            = "aria2c_path"
	KeyConcurrentDownloads   = "concurrent_downloads"
	KeyIntegrityCheck        = "integrity_check"
	KeyIntegrityRetryCount   = "integrity_retry_count"
	KeyConcurrentValidations = "concurrent_validations"
	KeyFileAllocation        = "file_allocation"
	KeyRPCPort               = "rpc_port"
	KeyMetricsAddr           = "metrics_addr"
	KeyMetricsTextfile       = "metrics_textfile"
	KeyHistoryDSN            = "history_dsn"
	KeySummaryFile           = "summary_file"
	KeyAPIToken              = "api_token"
)

// EnvAPIToken overrides api_token from the environment.
const EnvAPIToken = "MSYNC_API_TOKEN"

const (
	sessionFileName = ".aria2c-session"
	lockFileName    = ".manifest-sync.lock"
)

// ErrInvalid is returned by Validate for unusable settings.
var ErrInvalid = errors.New("invalid configuration")

// Config is the resolved configuration of one run.
type Config struct {
	ManifestURL           string `mapstructure:"manifest_url"`
	DownloadDir           string `mapstructure:"download_dir"`
	Aria2cPath            string `mapstructure:"aria2c_path"`
	ConcurrentDownloads   int    `mapstructure:"concurrent_downloads"`
	IntegrityCheck        bool   `mapstructure:"integrity_check"`
	IntegrityRetryCount   int    `mapstructure:"integrity_retry_count"`
	ConcurrentValidations int    `mapstructure:"concurrent_validations"`
	FileAllocation        string `mapstructure:"file_allocation"`
	RPCPort               int    `mapstructure:"rpc_port"`
	MetricsAddr           string `mapstructure:"metrics_addr"`
	MetricsTextfile       string `mapstructure:"metrics_textfile"`
	HistoryDSN            string `mapstructure:"history_dsn"`
	SummaryFile           string `mapstructure:"summary_file"`
	APIToken              string `mapstructure:"api_token"`

	// BaseURL is the manifest URL's directory, always ending in "/".
	BaseURL string `mapstructure:"-"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyManifestURL, "https://export.sourcify.dev/manifest.json")
	v.SetDefault(KeyDownloadDir, "./downloads")
	v.SetDefault(KeyAria2cPath, "aria2c")
	v.SetDefault(KeyConcurrentDownloads, 5)
	v.SetDefault(KeyIntegrityCheck, true)
	v.SetDefault(KeyIntegrityRetryCount, 3)
	v.SetDefault(KeyConcurrentValidations, runtime.NumCPU())
	v.SetDefault(KeyFileAllocation, "falloc")
	v.SetDefault(KeyRPCPort, 0)
	v.SetDefault(KeyMetricsAddr, "")
	v.SetDefault(KeyMetricsTextfile, "")
	v.SetDefault(KeyHistoryDSN, "")
	v.SetDefault(KeySummaryFile, "")
	v.SetDefault(KeyAPIToken, "")
	_ = v.BindEnv(KeyAPIToken, EnvAPIToken)
}

// Load reads file (DefaultFile when empty) into v and resolves the result.
// A missing file is not an error; defaults and bound flags apply.
func Load(v *viper.Viper, file string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)
	if file == "" {
		file = DefaultFile
	}
	v.SetConfigFile(file)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &nf) {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	dir, err := ExpandDir(cfg.DownloadDir)
	if err != nil {
		return nil, err
	}
	cfg.DownloadDir = dir
	base, err := BaseURL(cfg.ManifestURL)
	if err != nil {
		return nil, err
	}
	cfg.BaseURL = base
	return &cfg, nil
}

// Validate reports settings the sync cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.ConcurrentDownloads < 1:
		return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalid, KeyConcurrentDownloads, c.ConcurrentDownloads)
	case c.IntegrityRetryCount < 1:
		return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalid, KeyIntegrityRetryCount, c.IntegrityRetryCount)
	case c.ConcurrentValidations < 1:
		return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalid, KeyConcurrentValidations, c.ConcurrentValidations)
	case c.RPCPort < 0 || c.RPCPort > 65535:
		return fmt.Errorf("%w: %s out of range: %d", ErrInvalid, KeyRPCPort, c.RPCPort)
	case c.DownloadDir == "":
		return fmt.Errorf("%w: %s is empty", ErrInvalid, KeyDownloadDir)
	}
	if _, err := BaseURL(c.ManifestURL); err != nil {
		return err
	}
	return nil
}

// SessionFile is the aria2c session file inside the download directory.
func (c *Config) SessionFile() string { return filepath.Join(c.DownloadDir, sessionFileName) }

// LockFile guards the download directory against concurrent runs.
func (c *Config) LockFile() string { return filepath.Join(c.DownloadDir, lockFileName) }

// BaseURL returns the directory of manifestURL with a trailing slash.
// Query and fragment are dropped.
func BaseURL(manifestURL string) (string, error) {
	u, err := url.Parse(manifestURL)
	if err != nil {
		return "", fmt.Errorf("%w: manifest url: %v", ErrInvalid, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: manifest url %q must be an absolute http(s) url", ErrInvalid, manifestURL)
	}
	p := u.Path
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[:i]
	} else {
		p = ""
	}
	return u.Scheme + "://" + u.Host + p + "/", nil
}

// ExpandDir expands a leading "~" and makes dir absolute.
func ExpandDir(dir string) (string, error) {
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand %s: %w", dir, err)
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	return abs, nil
}
