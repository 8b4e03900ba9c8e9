/*
Copyright © 2020 Marvin

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package configutil

import (
	"encoding/json"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
	"go.uber.org/zap"

	"github.com/wentaojin/pounder/logger"
	"github.com/wentaojin/pounder/utils/stringutil"
)

// Config is the configuration for pounder
type Config struct {
	ConfigFile string          `toml:"config-file" json:"config-file"`
	Pounder    *PounderOptions `toml:"pounder" json:"pounder"`
	LogConfig  *logger.Config  `toml:"log" json:"log"`
}

func NewConfig() *Config {
	return &Config{
		Pounder: DefaultPounderConfig(),
		LogConfig: &logger.Config{
			LogLevel:   "info",
			MaxSize:    128,
			MaxDays:    7,
			MaxBackups: 30,
		},
	}
}

// Load decodes the settings file over the defaults, a missing path keeps the defaults
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Annotatef(err, "settings file [%s]", path)
	}
	if err := cfg.configFromFile(path); err != nil {
		return nil, err
	}
	cfg.ConfigFile = path
	return cfg, nil
}

// configFromFile loads config from file.
func (c *Config) configFromFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return errors.Annotatef(err, "config decode from file [%s] failed", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return errors.Errorf("config file [%s] contains unknown keys %v", path, undecoded)
	}
	return nil
}

func (c *Config) String() string {
	cfg, err := json.Marshal(c)
	if err != nil {
		logger.Error("marshal to json", zap.Reflect("pounder config", c), zap.Error(err))
	}
	return stringutil.BytesToString(cfg)
}
