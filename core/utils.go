package core

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// GetSeed receives a seed value for random number generation from the CBIR_SEED environment variable.
func GetSeed() int64 {
	seedStr := os.Getenv("CBIR_SEED")
	if seedStr != "" {
		if seed, err := strconv.ParseInt(seedStr, 10, 64); err == nil {
			log.Info().Msgf("Using seed from CBIR_SEED value: %d", seed)
			return seed
		}
		log.Warn().Msgf("Failed to parse CBIR_SEED value: %s", seedStr)
	}

	seed := time.Now().UnixNano()
	log.Info().Msgf("Using current time as seed: %d", seed)
	return seed
}

// FileExists reports whether path names an existing file.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteArtifact creates path, which must not exist yet, and fills it with write.
// An existing file is reported as ErrArtifactExists and left untouched. On any
// failure the partially written file is removed so a retry can succeed.
func WriteArtifact(path string, write func(w io.Writer) error) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w", path, ErrArtifactExists)
		}
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			if rmErr := os.Remove(path); rmErr != nil {
				log.Warn().Err(rmErr).Msgf("Could not remove partial artifact %s", path)
			}
		}
	}()

	w := bufio.NewWriter(f)
	if err = write(w); err != nil {
		return err
	}
	if err = w.Flush(); err != nil {
		return err
	}
	return f.Close()
}
