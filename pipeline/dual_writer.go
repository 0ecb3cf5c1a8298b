package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/isbn-finder/models"
)

// FanOutWriter sends every batch to several writers in order.
// A failed Write stops at the first failing target; Close and Validate visit all.
type FanOutWriter struct {
	mu      sync.Mutex
	names   []string
	targets []ResultWriter
}

// NewFanOutWriter pairs each writer with a label used in error messages.
func NewFanOutWriter(names []string, targets []ResultWriter) (*FanOutWriter, error) {
	if len(names) != len(targets) {
		return nil, fmt.Errorf("fan-out writer: %d names for %d writers", len(names), len(targets))
	}
	return &FanOutWriter{names: names, targets: targets}, nil
}

// NewDualWriter writes CSV to csvFilename and JSON lines to jsonFilename.
func NewDualWriter(csvFilename, jsonFilename string) (*FanOutWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("create csv output: %w", err)
	}
	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		_ = csvWriter.Close()
		return nil, fmt.Errorf("create json output: %w", err)
	}
	return NewFanOutWriter([]string{"csv", "json"}, []ResultWriter{csvWriter, jsonWriter})
}

func (fw *FanOutWriter) Write(records []models.SearchResultRecord) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	for i, target := range fw.targets {
		if err := target.Write(records); err != nil {
			return fmt.Errorf("%s output: %w", fw.names[i], err)
		}
	}
	return nil
}

func (fw *FanOutWriter) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.each(ResultWriter.Close)
}

func (fw *FanOutWriter) Validate() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.each(ResultWriter.Validate)
}

func (fw *FanOutWriter) each(fn func(ResultWriter) error) error {
	var errs []error
	for i, target := range fw.targets {
		if err := fn(target); err != nil {
			errs = append(errs, fmt.Errorf("%s output: %w", fw.names[i], err))
		}
	}
	return errors.Join(errs...)
}
