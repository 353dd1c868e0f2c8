package config_test

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/patrikhermansson/cbir/config"
	"github.com/patrikhermansson/cbir/kmeans"
	"github.com/patrikhermansson/cbir/lsh"
)

func writeJob(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "job.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaultsAndPaths(t *testing.T) {
	dir := t.TempDir()
	path := writeJob(t, dir, `
input: images
index: out/index.db
features:
  - name: color
    extractor: colorhist
  - name: words
    extractor: patches
    aggregation:
      mode: vlad
      codebook: codebook.bin
    hash:
      bank: /abs/bank.lsh
`)
	job, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if job.Input != filepath.Join(dir, "images") || job.Index != filepath.Join(dir, "out", "index.db") {
		t.Errorf("paths not resolved: %q %q", job.Input, job.Index)
	}
	if job.Features[1].Aggregation.Codebook != filepath.Join(dir, "codebook.bin") {
		t.Errorf("codebook path = %q", job.Features[1].Aggregation.Codebook)
	}
	if job.Features[1].Hash.Bank != "/abs/bank.lsh" || job.Features[1].Hash.Field != "words_hash" {
		t.Errorf("hash = %+v", job.Features[1].Hash)
	}
	if job.Workers != runtime.NumCPU() || job.Buffer != 2*job.Workers || job.SoftLimit != job.Buffer {
		t.Errorf("defaults = %d workers, %d buffer, %d soft limit", job.Workers, job.Buffer, job.SoftLimit)
	}
	cfg := job.Pipeline()
	if cfg.Workers != job.Workers || cfg.BufferSize != job.Buffer {
		t.Errorf("Pipeline() = %+v", cfg)
	}
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]string{
		"no input":          "index: i\nfeatures: [{name: c, extractor: colorhist}]\n",
		"no index":          "input: i\nfeatures: [{name: c, extractor: colorhist}]\n",
		"no features":       "input: i\nindex: x\n",
		"unknown extractor": "input: i\nindex: x\nfeatures: [{name: c, extractor: sift}]\n",
		"reserved name":     "input: i\nindex: x\nfeatures: [{name: id, extractor: colorhist}]\n",
		"duplicate name":    "input: i\nindex: x\nfeatures: [{name: c, extractor: colorhist}, {name: c, extractor: colorhist}]\n",
		"local without agg": "input: i\nindex: x\nfeatures: [{name: c, extractor: patches}]\n",
		"global with agg":   "input: i\nindex: x\nfeatures: [{name: c, extractor: colorhist, aggregation: {codebook: cb}}]\n",
		"bad mode":          "input: i\nindex: x\nfeatures: [{name: c, extractor: patches, aggregation: {codebook: cb, mode: fisher}}]\n",
		"hash without bank": "input: i\nindex: x\nfeatures: [{name: c, extractor: colorhist, hash: {field: h}}]\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeJob(t, t.TempDir(), body))
			if !errors.Is(err, config.ErrInvalid) {
				t.Errorf("Load error = %v; want ErrInvalid", err)
			}
		})
	}

	_, err := config.Load(writeJob(t, t.TempDir(), "input: i\nindex: x\nthreads: 4\n"))
	if err == nil || !strings.Contains(err.Error(), "threads") {
		t.Errorf("unknown key error = %v", err)
	}
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("Load of missing file succeeded")
	}
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	rnd := rand.New(rand.NewSource(1))
	centroids := make([][]float32, 3)
	for i := range centroids {
		centroids[i] = make([]float32, 64)
		for j := range centroids[i] {
			centroids[i][j] = rnd.Float32()
		}
	}
	if err := kmeans.NewCodebook(centroids).Save(filepath.Join(dir, "cb.bin")); err != nil {
		t.Fatal(err)
	}
	if _, err := lsh.GenerateBitSampling(filepath.Join(dir, "bank.lsh"), lsh.Params{Bits: 4, Dimensions: 3, Bundles: 2, BinWidth: 1}, 1); err != nil {
		t.Fatal(err)
	}
	job, err := config.Load(writeJob(t, dir, `
input: images
index: index.db
workers: 2
features:
  - name: color
    extractor: colorhist
    half: true
  - name: words
    extractor: patches
    aggregation: {mode: bovw, codebook: cb.bin, normalization: l1}
    hash: {bank: bank.lsh}
`))
	if err != nil {
		t.Fatal(err)
	}
	features, err := job.Build()
	if err != nil {
		t.Fatal(err)
	}
	if len(features) != 2 {
		t.Fatalf("got %d features", len(features))
	}
	if features[0].Global == nil || !features[0].Half {
		t.Errorf("color feature = %+v", features[0])
	}
	w := features[1]
	if w.Local == nil || w.Aggregator == nil || w.Hasher == nil || w.HashField != "words_hash" {
		t.Errorf("words feature = %+v", w)
	}
	if w.Aggregator.Length() != 3 || w.Hasher.Bundles() != 2 {
		t.Errorf("aggregator length %d, bundles %d", w.Aggregator.Length(), w.Hasher.Bundles())
	}

	job.Features[1].Aggregation.Codebook = filepath.Join(dir, "nope.bin")
	if _, err := job.Build(); err == nil {
		t.Errorf("Build with missing codebook succeeded")
	}
}
