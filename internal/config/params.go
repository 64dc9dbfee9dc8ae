package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/backmassage/vidmask/internal/compress"
)

// LoadParamsFile reads a compression parameter file. The file is YAML; since
// JSON is a subset of YAML, the JSON parameter files used by older batches
// load unchanged. Keys that are absent stay nil in the returned overrides.
//
//	buffer_size: 25
//	save_full_interval: 5000
//	mask:
//	  min_area: 100
//	  thresh_C: 15
func LoadParamsFile(path string) (compress.Overrides, error) {
	var ov compress.Overrides
	data, err := os.ReadFile(path)
	if err != nil {
		return ov, fmt.Errorf("failed to read parameter file: %w", err)
	}
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return ov, fmt.Errorf("failed to parse parameter file %s: %w", path, err)
	}
	return ov, nil
}
