package offlinecache

import (
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk configuration for a worker deployment.
// Everything is optional; unset fields fall back to the build-time
// defaults.
type FileConfig struct {
	Origin          string   `yaml:"origin"`
	Version         string   `yaml:"version"`
	Preload         []string `yaml:"preload"`
	AssetPrefixes   []string `yaml:"assetPrefixes"`
	AssetExtensions []string `yaml:"assetExtensions"`
}

func LoadConfig(filename string) (FileConfig, error) {
	var config FileConfig
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}
