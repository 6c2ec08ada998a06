package main

import (
	"os"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// fileConfig is the optional single-file configuration. Flags beat env vars
// beat the file; the file only fills what the other two left empty.
type fileConfig struct {
	Listen string `yaml:"listen"`

	Searx struct {
		URL string `yaml:"url"`
		Key string `yaml:"key"`
		UA  string `yaml:"ua"`
	} `yaml:"searx"`

	Search struct {
		File string `yaml:"file"`
	} `yaml:"search"`

	Scraper string `yaml:"scraper"` // rod | http

	Dirs struct {
		Checkpoints string `yaml:"checkpoints"`
		Exports     string `yaml:"exports"`
	} `yaml:"dirs"`

	Export struct {
		PDF bool `yaml:"pdf"`
	} `yaml:"export"`

	AllowPrivate bool `yaml:"allowPrivate"`
	Verbose      bool `yaml:"verbose"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	if strings.TrimSpace(path) == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// fallback returns the first non-empty string.
func fallback(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// normalizeProxyEnv rewrites socks:// proxy URLs to socks5://, which the
// Go transport understands; the bare scheme is common in desktop setups.
func normalizeProxyEnv() {
	for _, key := range []string{"ALL_PROXY", "HTTP_PROXY", "HTTPS_PROXY", "all_proxy", "http_proxy", "https_proxy"} {
		v := os.Getenv(key)
		if strings.HasPrefix(v, "socks://") {
			os.Setenv(key, "socks5://"+strings.TrimPrefix(v, "socks://"))
		}
	}
}
