// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

type EngineOptions struct {
	Workers             int    `toml:"workers"`
	ParallelThreshold   int    `toml:"parallelThreshold"`
	DirectArrayMaxSlots uint64 `toml:"directArrayMaxSlots"`
	MaxGroups           int    `toml:"maxGroups"`
	ArenaBlockSize      int    `toml:"arenaBlockSize"`
	ArenaLimit          int    `toml:"arenaLimit"`
	HllSampleRows       int    `toml:"hllSampleRows"`
}

type StorageOptions struct {
	Root          string `toml:"root"`
	Table         string `toml:"table"`
	PartitionMode string `toml:"partitionMode"`
}

type DebugOptions struct {
	LogLevel          string `toml:"logLevel"`
	PrintPlan         bool   `toml:"printPlan"`
	PrintResult       bool   `toml:"printResult"`
	MaxOutputRowCount int    `toml:"maxOutputRowCount"`
	CheckArenaOwner   bool   `toml:"checkArenaOwner"`
}

type Config struct {
	Engine  EngineOptions  `toml:"engine"`
	Storage StorageOptions `toml:"storage"`
	Debug   DebugOptions   `toml:"debug"`
}

const (
	DefaultDirectArrayMaxSlots = 262144
	DefaultArenaBlockSize      = 1 << 20
	DefaultHllSampleRows       = 65536
)

func DefaultConfig() *Config {
	return &Config{
		Engine: EngineOptions{
			Workers:             4,
			ParallelThreshold:   64 * 1024,
			DirectArrayMaxSlots: DefaultDirectArrayMaxSlots,
			ArenaBlockSize:      DefaultArenaBlockSize,
			HllSampleRows:       DefaultHllSampleRows,
		},
		Storage: StorageOptions{
			PartitionMode: "concat",
		},
		Debug: DebugOptions{
			LogLevel:          "info",
			MaxOutputRowCount: 20,
		},
	}
}

// LoadConfig decodes a toml file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.fixup()
	return cfg, nil
}

func (cfg *Config) fixup() {
	if cfg.Engine.DirectArrayMaxSlots == 0 {
		cfg.Engine.DirectArrayMaxSlots = DefaultDirectArrayMaxSlots
	}
	if cfg.Engine.ArenaBlockSize <= 0 {
		cfg.Engine.ArenaBlockSize = DefaultArenaBlockSize
	}
	if cfg.Engine.HllSampleRows <= 0 {
		cfg.Engine.HllSampleRows = DefaultHllSampleRows
	}
	if cfg.Engine.ParallelThreshold <= 0 {
		cfg.Engine.ParallelThreshold = DefaultVectorSize
	}
	if cfg.Storage.PartitionMode == "" {
		cfg.Storage.PartitionMode = "concat"
	}
}
