// Package dataset reads descriptor and ground-truth CSV files and measures
// retrieval quality against them.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

var ErrRagged = errors.New("rows have different lengths")

// ReadVectors reads one float32 vector per CSV row. All rows must have the same length.
func ReadVectors(path string, skipHeader bool) ([][]float32, error) {
	rows, err := readCSV[float32](path, skipHeader)
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		if len(row) != len(rows[0]) {
			return nil, fmt.Errorf("%s row %d: %w: %d != %d", path, i, ErrRagged, len(row), len(rows[0]))
		}
	}
	return rows, nil
}

// Benchmark holds an ann-benchmarks style dataset directory:
// train.csv, test.csv and neighbors.csv (row indices into train.csv, nearest first).
type Benchmark struct {
	Train     [][]float32
	Test      [][]float32
	Neighbors [][]int
}

// LoadBenchmark reads the three files of dir.
func LoadBenchmark(dir string) (*Benchmark, error) {
	log.Info().Msgf("Loading dataset from directory: %s", dir)
	var b Benchmark
	var err error
	if b.Train, err = ReadVectors(filepath.Join(dir, "train.csv"), false); err != nil {
		return nil, fmt.Errorf("failed to load train.csv: %w", err)
	}
	if b.Test, err = ReadVectors(filepath.Join(dir, "test.csv"), false); err != nil {
		return nil, fmt.Errorf("failed to load test.csv: %w", err)
	}
	if b.Neighbors, err = readCSV[int](filepath.Join(dir, "neighbors.csv"), false); err != nil {
		return nil, fmt.Errorf("failed to load neighbors.csv: %w", err)
	}
	if len(b.Neighbors) < len(b.Test) {
		return nil, fmt.Errorf("neighbors.csv has %d rows for %d queries", len(b.Neighbors), len(b.Test))
	}
	log.Info().Msgf("Loaded %d training and %d test vectors", len(b.Train), len(b.Test))
	return &b, nil
}

func readCSV[T int | float32](path string, skipHeader bool) ([][]T, error) {
	log.Debug().Msgf("Opening CSV file: %s", path)
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	var result [][]T
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read error in %s: %w", path, err)
		}
		if skipHeader {
			skipHeader = false
			continue
		}
		row := make([]T, len(record))
		for i, val := range record {
			if row[i], err = parseValue[T](val); err != nil {
				return nil, fmt.Errorf("parse error at line %d col %d in %s: %w", line, i, path, err)
			}
		}
		result = append(result, row)
	}
	log.Debug().Msgf("Parsed %d rows from %s", len(result), path)
	return result, nil
}

func parseValue[T int | float32](s string) (T, error) {
	s = strings.TrimSpace(s)
	var zero T
	switch any(zero).(type) {
	case int:
		v, err := strconv.Atoi(s)
		return any(v).(T), err
	default:
		v, err := strconv.ParseFloat(s, 32)
		return any(float32(v)).(T), err
	}
}
