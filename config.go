package tinygc

import (
	"fmt"
	"io"
	"os"

	yaml "gopkg.in/yaml.v2"
)

// Config is the serializable form of the collector tunables.
type Config struct {
	// ScanCountToOldGen is how many young collections an object survives
	// before promotion.
	ScanCountToOldGen int `yaml:"scan_count_to_old_gen"`
	// NewGenObjCntToGC is the allocation count that triggers an automatic
	// young collection.
	NewGenObjCntToGC int `yaml:"new_gen_obj_cnt_to_gc"`
	// OldGenObjCntToFullGC is the old generation size that escalates to a
	// full collection.
	OldGenObjCntToFullGC int `yaml:"old_gen_obj_cnt_to_full_gc"`
	// Trace enables cycle logging.
	Trace bool `yaml:"trace"`
}

// DefaultConfig returns the built-in tunables.
func DefaultConfig() Config {
	return Config{
		ScanCountToOldGen:    2,
		NewGenObjCntToGC:     10240,
		OldGenObjCntToFullGC: 102400,
	}
}

// LoadConfig reads a YAML config from r. Unknown keys are rejected.
func LoadConfig(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("tinygc: reading config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("tinygc: parsing config: %w", err)
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML config from the named file.
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("tinygc: opening config: %w", err)
	}
	defer f.Close()
	return LoadConfig(f)
}

// Configure validates cfg and applies it.
func (c *Collector) Configure(cfg Config) error {
	if cfg.ScanCountToOldGen < 1 {
		return fmt.Errorf("tinygc: scan_count_to_old_gen must be at least 1, got %d", cfg.ScanCountToOldGen)
	}
	if cfg.NewGenObjCntToGC < 1 {
		return fmt.Errorf("tinygc: new_gen_obj_cnt_to_gc must be at least 1, got %d", cfg.NewGenObjCntToGC)
	}
	if cfg.OldGenObjCntToFullGC < cfg.NewGenObjCntToGC {
		return fmt.Errorf("tinygc: old_gen_obj_cnt_to_full_gc (%d) must not be below new_gen_obj_cnt_to_gc (%d)",
			cfg.OldGenObjCntToFullGC, cfg.NewGenObjCntToGC)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ScanCountToOldGen = cfg.ScanCountToOldGen
	c.NewGenObjCntToGC = cfg.NewGenObjCntToGC
	c.OldGenObjCntToFullGC = cfg.OldGenObjCntToFullGC
	c.Trace = cfg.Trace
	return nil
}
