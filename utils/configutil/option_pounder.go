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
	"time"
)

const (
	DefaultEdition                = "auto"
	DefaultConsoleRefreshInterval = 2 * time.Second
	DefaultPidPollInterval        = 500 * time.Millisecond
	DefaultStartTimeout           = 60 * time.Second
	DefaultStopTimeout            = 30 * time.Second
	DefaultKillTimeout            = 10 * time.Second
	DefaultConcurrency            = 5
	DefaultConsoleMaxSize         = 64 // MB
	DefaultConsoleMaxBackups      = 3
)

// PounderOptions is the [pounder] section of the settings file
type PounderOptions struct {
	KitPath      string `toml:"kit-path" json:"kit-path"`
	LicensePath  string `toml:"license-path" json:"license-path"`
	Edition      string `toml:"edition" json:"edition"`
	TopologyFile string `toml:"topology-file" json:"topology-file"`

	ConsoleRefreshInterval time.Duration `toml:"console-refresh-interval" json:"console-refresh-interval"`
	PidPollInterval        time.Duration `toml:"pid-poll-interval" json:"pid-poll-interval"`
	StartTimeout           time.Duration `toml:"start-timeout" json:"start-timeout"`
	StopTimeout            time.Duration `toml:"stop-timeout" json:"stop-timeout"`
	KillTimeout            time.Duration `toml:"kill-timeout" json:"kill-timeout"`

	// ConsoleMaxLines caps each in-memory console, 0 keeps every line
	ConsoleMaxLines int `toml:"console-max-lines" json:"console-max-lines"`
	// ConsoleDir mirrors every server console into <console-dir>/<server>.log when set
	ConsoleDir string `toml:"console-dir" json:"console-dir"`

	Concurrency int `toml:"concurrency" json:"concurrency"`
}

type PounderOption func(opts *PounderOptions)

func DefaultPounderConfig() *PounderOptions {
	return &PounderOptions{
		Edition:                DefaultEdition,
		ConsoleRefreshInterval: DefaultConsoleRefreshInterval,
		PidPollInterval:        DefaultPidPollInterval,
		StartTimeout:           DefaultStartTimeout,
		StopTimeout:            DefaultStopTimeout,
		KillTimeout:            DefaultKillTimeout,
		Concurrency:            DefaultConcurrency,
	}
}

func WithKitPath(path string) PounderOption {
	return func(opts *PounderOptions) {
		opts.KitPath = path
	}
}

func WithLicensePath(path string) PounderOption {
	return func(opts *PounderOptions) {
		opts.LicensePath = path
	}
}

func WithEdition(edition string) PounderOption {
	return func(opts *PounderOptions) {
		opts.Edition = edition
	}
}

func WithTopologyFile(file string) PounderOption {
	return func(opts *PounderOptions) {
		opts.TopologyFile = file
	}
}

func WithConsoleRefreshInterval(d time.Duration) PounderOption {
	return func(opts *PounderOptions) {
		if d > 0 {
			opts.ConsoleRefreshInterval = d
		}
	}
}

func WithPidPollInterval(d time.Duration) PounderOption {
	return func(opts *PounderOptions) {
		if d > 0 {
			opts.PidPollInterval = d
		}
	}
}

func WithStartTimeout(d time.Duration) PounderOption {
	return func(opts *PounderOptions) {
		if d > 0 {
			opts.StartTimeout = d
		}
	}
}

func WithStopTimeout(d time.Duration) PounderOption {
	return func(opts *PounderOptions) {
		if d > 0 {
			opts.StopTimeout = d
		}
	}
}

func WithKillTimeout(d time.Duration) PounderOption {
	return func(opts *PounderOptions) {
		if d > 0 {
			opts.KillTimeout = d
		}
	}
}

func WithConsoleMaxLines(n int) PounderOption {
	return func(opts *PounderOptions) {
		opts.ConsoleMaxLines = n
	}
}

func WithConsoleDir(dir string) PounderOption {
	return func(opts *PounderOptions) {
		opts.ConsoleDir = dir
	}
}

func WithConcurrency(n int) PounderOption {
	return func(opts *PounderOptions) {
		if n > 0 {
			opts.Concurrency = n
		}
	}
}

// Apply runs the given options in order
func (o *PounderOptions) Apply(opts ...PounderOption) *PounderOptions {
	for _, opt := range opts {
		opt(o)
	}
	return o
}
