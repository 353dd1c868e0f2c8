// Package config reads indexing job descriptions from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/patrikhermansson/cbir/aggregate"
	"github.com/patrikhermansson/cbir/extract"
	"github.com/patrikhermansson/cbir/lsh"
	"github.com/patrikhermansson/cbir/pipeline"
	"github.com/patrikhermansson/cbir/store"
)

var ErrInvalid = errors.New("invalid configuration")

// Job is one indexing run.
type Job struct {
	// Input is an image directory or a file listing one source per line.
	Input     string    `yaml:"input"`
	Index     string    `yaml:"index"`
	Workers   int       `yaml:"workers"`
	Buffer    int       `yaml:"buffer"`
	SoftLimit int       `yaml:"soft_limit"`
	Progress  bool      `yaml:"progress"`
	Features  []Feature `yaml:"features"`
}

// Feature configures one document field.
type Feature struct {
	Name        string       `yaml:"name"`
	Extractor   string       `yaml:"extractor"`
	Half        bool         `yaml:"half"`
	Aggregation *Aggregation `yaml:"aggregation"`
	Hash        *Hash        `yaml:"hash"`
}

type Aggregation struct {
	Mode          string `yaml:"mode"`
	Codebook      string `yaml:"codebook"`
	Normalization string `yaml:"normalization"`
}

type Hash struct {
	Bank  string `yaml:"bank"`
	Field string `yaml:"field"`
}

// Load reads, defaults and validates the job at path. Relative paths in the
// file are resolved against the file's directory.
func Load(path string) (*Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var job Job
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&job); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	job.resolve(filepath.Dir(path))
	job.applyDefaults()
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &job, nil
}

func (j *Job) resolve(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	j.Input = abs(j.Input)
	j.Index = abs(j.Index)
	for i := range j.Features {
		if a := j.Features[i].Aggregation; a != nil {
			a.Codebook = abs(a.Codebook)
		}
		if h := j.Features[i].Hash; h != nil {
			h.Bank = abs(h.Bank)
		}
	}
}

func (j *Job) applyDefaults() {
	if j.Workers <= 0 {
		j.Workers = runtime.NumCPU()
	}
	if j.Buffer <= 0 {
		j.Buffer = 2 * j.Workers
	}
	if j.SoftLimit <= 0 || j.SoftLimit > j.Buffer {
		j.SoftLimit = j.Buffer
	}
	for i := range j.Features {
		if h := j.Features[i].Hash; h != nil && h.Field == "" {
			h.Field = j.Features[i].Name + "_hash"
		}
	}
}

// Validate checks the job without touching any artifact.
func (j *Job) Validate() error {
	if j.Input == "" {
		return fmt.Errorf("%w: input is required", ErrInvalid)
	}
	if j.Index == "" {
		return fmt.Errorf("%w: index is required", ErrInvalid)
	}
	if len(j.Features) == 0 {
		return fmt.Errorf("%w: no features", ErrInvalid)
	}
	names := map[string]bool{store.IDField: true}
	for i, f := range j.Features {
		if f.Name == "" {
			return fmt.Errorf("%w: feature %d has no name", ErrInvalid, i)
		}
		if names[f.Name] {
			return fmt.Errorf("%w: field %q used twice or reserved", ErrInvalid, f.Name)
		}
		names[f.Name] = true
		if f.Hash != nil {
			if f.Hash.Bank == "" {
				return fmt.Errorf("%w: feature %q: hash bank is required", ErrInvalid, f.Name)
			}
			if names[f.Hash.Field] {
				return fmt.Errorf("%w: field %q used twice or reserved", ErrInvalid, f.Hash.Field)
			}
			names[f.Hash.Field] = true
		}

		e, err := extract.Lookup(f.Extractor)
		if err != nil {
			return fmt.Errorf("%w: feature %q: %v", ErrInvalid, f.Name, err)
		}
		_, local := e.(extract.Local)
		switch {
		case local && f.Aggregation == nil:
			return fmt.Errorf("%w: feature %q: local extractor %s needs an aggregation", ErrInvalid, f.Name, f.Extractor)
		case !local && f.Aggregation != nil:
			return fmt.Errorf("%w: feature %q: global extractor %s cannot be aggregated", ErrInvalid, f.Name, f.Extractor)
		}
		if a := f.Aggregation; a != nil {
			if a.Codebook == "" {
				return fmt.Errorf("%w: feature %q: codebook is required", ErrInvalid, f.Name)
			}
			if _, err := aggregate.ParseMode(a.Mode); err != nil {
				return fmt.Errorf("%w: feature %q: %v", ErrInvalid, f.Name, err)
			}
			if _, err := aggregate.ParseNormalization(a.Normalization); err != nil {
				return fmt.Errorf("%w: feature %q: %v", ErrInvalid, f.Name, err)
			}
		}
	}
	return nil
}

// Pipeline returns the sizing of the pipeline.
func (j *Job) Pipeline() pipeline.Config {
	return pipeline.Config{Workers: j.Workers, BufferSize: j.Buffer, SoftLimit: j.SoftLimit, Progress: j.Progress}
}

// Build loads the codebooks and hash banks the features reference and returns
// the pipeline features.
func (j *Job) Build() ([]pipeline.Feature, error) {
	out := make([]pipeline.Feature, 0, len(j.Features))
	for _, f := range j.Features {
		e, err := extract.Lookup(f.Extractor)
		if err != nil {
			return nil, err
		}
		pf := pipeline.Feature{Field: f.Name, Half: f.Half}
		switch x := e.(type) {
		case extract.Local:
			pf.Local = x
			if pf.Aggregator, err = f.Aggregation.build(); err != nil {
				return nil, fmt.Errorf("feature %s: %w", f.Name, err)
			}
		case extract.Global:
			pf.Global = x
		default:
			return nil, fmt.Errorf("feature %s: extractor %s is neither global nor local", f.Name, f.Extractor)
		}
		if f.Hash != nil {
			if pf.Hasher, err = lsh.LoadHasher(f.Hash.Bank); err != nil {
				return nil, fmt.Errorf("feature %s: %w", f.Name, err)
			}
			pf.HashField = f.Hash.Field
		}
		out = append(out, pf)
	}
	return out, nil
}
