package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"libris/pkg/bench"
	"libris/pkg/common"
	"libris/pkg/core/index"
	"libris/pkg/workload"
)

type Config struct {
	Dataset  DatasetConfig  `yaml:"dataset"`
	Bench    BenchConfig    `yaml:"bench"`
	Workload WorkloadConfig `yaml:"workload"`
	Output   OutputConfig   `yaml:"output"`
}

type DatasetConfig struct {
	BooksFile string `yaml:"books_file"`
	UsersFile string `yaml:"users_file"` // empty: no users
}

type BenchConfig struct {
	Experiments int      `yaml:"experiments"`
	Sizes       []int    `yaml:"sizes"`       // explicit dataset sizes
	SizeLevels  int      `yaml:"size_levels"` // used when sizes is empty
	Variants    []string `yaml:"variants"`
	Seed        uint64   `yaml:"seed"`
	Workers     int      `yaml:"workers"`
	TreeDegree  int      `yaml:"tree_degree"`
	Verify      bool     `yaml:"verify"`
}

type WorkloadConfig struct {
	Operations int            `yaml:"operations"`
	Mix        map[string]int `yaml:"mix"`
	MissRatio  float64        `yaml:"miss_ratio"`
	Fields     []string       `yaml:"fields"`
	Replay     string         `yaml:"replay"` // trace file replayed instead of generating
}

type OutputConfig struct {
	Dir      string `yaml:"dir"`
	File     string `yaml:"file"`
	SQLite   string `yaml:"sqlite"`    // 结果数据库路径，空则不写
	TraceDir string `yaml:"trace_dir"` // 工作负载 trace 目录，空则不写
}

func defaults() *Config {
	return &Config{
		Dataset: DatasetConfig{
			BooksFile: "configs/books.jsonl",
			UsersFile: "configs/users.jsonl",
		},
		Bench: BenchConfig{
			Experiments: 100,
			SizeLevels:  6,
			Variants:    []string{"linear", "hash", "btree", "sorted"},
			Seed:        1,
			Workers:     1,
			TreeDegree:  32,
		},
		Workload: WorkloadConfig{
			Operations: 1000,
			MissRatio:  0.1,
			Fields:     []string{"id", "title", "author"},
		},
		Output: OutputConfig{
			Dir:  "benchmarks",
			File: "results.json",
		},
	}
}

// Load reads configPath, or the first of configs/libris.yaml and libris.yaml
// when configPath is empty. Without a file the defaults are returned.
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	if configPath == "" {
		for _, p := range []string{"configs/libris.yaml", "libris.yaml"} {
			data, err := os.ReadFile(p)
			if err == nil {
				if err := yaml.Unmarshal(data, cfg); err != nil {
					return cfg, fmt.Errorf("parse %s: %w", p, err)
				}
				applyDefaults(cfg)
				return cfg, nil
			}
		}
		applyDefaults(cfg)
		return cfg, nil // no file found: use defaults
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", configPath, err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	d := defaults()
	if cfg.Dataset.BooksFile == "" {
		cfg.Dataset.BooksFile = d.Dataset.BooksFile
	}
	if cfg.Bench.Experiments <= 0 {
		cfg.Bench.Experiments = d.Bench.Experiments
	}
	if cfg.Bench.SizeLevels <= 0 {
		cfg.Bench.SizeLevels = d.Bench.SizeLevels
	}
	if len(cfg.Bench.Variants) == 0 {
		cfg.Bench.Variants = d.Bench.Variants
	}
	if cfg.Bench.Workers <= 0 {
		cfg.Bench.Workers = d.Bench.Workers
	}
	if cfg.Bench.TreeDegree < 2 {
		cfg.Bench.TreeDegree = d.Bench.TreeDegree
	}
	if cfg.Workload.Operations <= 0 {
		cfg.Workload.Operations = d.Workload.Operations
	}
	if cfg.Workload.MissRatio < 0 || cfg.Workload.MissRatio > 1 {
		cfg.Workload.MissRatio = d.Workload.MissRatio
	}
	if len(cfg.Workload.Fields) == 0 {
		cfg.Workload.Fields = d.Workload.Fields
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = d.Output.Dir
	}
	if cfg.Output.File == "" {
		cfg.Output.File = d.Output.File
	}
}

// ApplyEnv overrides settings from LIBRIS_* environment variables.
func ApplyEnv(cfg *Config) error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = n
		return nil
	}

	str("LIBRIS_BOOKS_FILE", &cfg.Dataset.BooksFile)
	str("LIBRIS_USERS_FILE", &cfg.Dataset.UsersFile)
	str("LIBRIS_OUTPUT_DIR", &cfg.Output.Dir)
	str("LIBRIS_SQLITE", &cfg.Output.SQLite)
	str("LIBRIS_TRACE_DIR", &cfg.Output.TraceDir)
	str("LIBRIS_REPLAY", &cfg.Workload.Replay)

	for name, dst := range map[string]*int{
		"LIBRIS_EXPERIMENTS": &cfg.Bench.Experiments,
		"LIBRIS_WORKERS":     &cfg.Bench.Workers,
		"LIBRIS_OPERATIONS":  &cfg.Workload.Operations,
	} {
		if err := num(name, dst); err != nil {
			return err
		}
	}
	if v, ok := os.LookupEnv("LIBRIS_SEED"); ok && v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("LIBRIS_SEED: %w", err)
		}
		cfg.Bench.Seed = seed
	}
	if v, ok := os.LookupEnv("LIBRIS_VARIANTS"); ok && v != "" {
		cfg.Bench.Variants = splitList(v)
	}

	applyDefaults(cfg)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Harness converts the bench and workload sections into a harness config,
// rejecting unknown variants, operation kinds and fields.
func (c *Config) Harness() (bench.Config, error) {
	hc := bench.Config{
		Sizes:       c.Bench.Sizes,
		SizeLevels:  c.Bench.SizeLevels,
		Experiments: c.Bench.Experiments,
		Seed:        c.Bench.Seed,
		Workers:     c.Bench.Workers,
		TreeDegree:  c.Bench.TreeDegree,
		Verify:      c.Bench.Verify,
		TraceDir:    c.Output.TraceDir,
		Replay:      c.Workload.Replay,
		Workload: workload.Config{
			Operations: c.Workload.Operations,
			MissRatio:  c.Workload.MissRatio,
		},
	}
	for _, v := range c.Bench.Variants {
		k, err := index.ParseKind(v)
		if err != nil {
			return bench.Config{}, err
		}
		hc.Variants = append(hc.Variants, k)
	}
	if len(c.Workload.Mix) > 0 {
		hc.Workload.Mix = make(map[workload.Kind]int, len(c.Workload.Mix))
		for name, w := range c.Workload.Mix {
			k, err := workload.ParseKind(name)
			if err != nil {
				return bench.Config{}, err
			}
			hc.Workload.Mix[k] = w
		}
	}
	for _, name := range c.Workload.Fields {
		f, err := common.ParseField(name)
		if err != nil {
			return bench.Config{}, err
		}
		hc.Workload.Fields = append(hc.Workload.Fields, f)
	}
	return hc, nil
}
