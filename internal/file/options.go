// Package file reads and writes the converter's YAML options.
package file

import (
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Options drive one conversion run. Flags override file values via Merge.
type Options struct {
	InputFile       string `yaml:"input_file"`
	InputFileSHA256 string `yaml:"input_file_sha256,omitempty"`
	OutputFile      string `yaml:"output_file"`

	Track   *int `yaml:"track,omitempty"`
	Channel *int `yaml:"channel,omitempty"`

	LoopStartBeats  *float64 `yaml:"loop_start_beats,omitempty"`
	LoopLengthBeats *float64 `yaml:"loop_length_beats,omitempty"`
	// LoopType is "all" or "subsequent".
	LoopType    string   `yaml:"loop_type,omitempty"`
	LengthBeats *float64 `yaml:"length_beats,omitempty"`

	QuantiseGrid     *float64 `yaml:"quantise_grid,omitempty"`
	QuantiseStrength *float64 `yaml:"quantise_strength,omitempty"`

	MPE *bool `yaml:"mpe,omitempty"`
}

func ReadOptions(fsys fs.FS, optionsFile string) (*Options, error) {
	f, err := fsys.Open(optionsFile)
	if err != nil {
		return nil, fmt.Errorf("could not open %v: %v", optionsFile, err)
	}
	defer f.Close()
	var options Options
	err = yaml.NewDecoder(f).Decode(&options)
	if err != nil {
		return nil, fmt.Errorf("could not decode %v: %v", optionsFile, err)
	}
	return &options, nil
}

func WriteOptions(optionsFile string, options *Options) (err error) {
	f, err := os.Create(optionsFile)
	if err != nil {
		return fmt.Errorf("could not recreate %v: %v", optionsFile, err)
	}
	defer func() {
		closeErr := f.Close()
		if closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2) // Match yq.
	return enc.Encode(options)
}
