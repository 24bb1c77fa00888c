package sources

import (
	"context"
	"strings"
	"sync"

	"timesheet-reconciliation-service/internal/models"
	"timesheet-reconciliation-service/pkg/errors"
)

// RecordSource supplies the records of one system for a run
type RecordSource interface {
	Records(ctx context.Context) ([]*models.Record, error)
	Describe() string
}

// FileSource reads one or more export files of the same system. Files are
// read concurrently; records come back in the order the paths were given.
type FileSource struct {
	paths          []string
	reader         *ExportReader
	maxConcurrency int
}

// NewFileSource creates a file source. maxConcurrency <= 0 means 4.
func NewFileSource(reader *ExportReader, maxConcurrency int, paths ...string) *FileSource {
	if reader == nil {
		reader = NewExportReader(nil)
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &FileSource{paths: paths, reader: reader, maxConcurrency: maxConcurrency}
}

// Describe names the files of the source
func (fs *FileSource) Describe() string {
	return strings.Join(fs.paths, ", ")
}

// fileResult holds the result of reading one file
type fileResult struct {
	records []*models.Record
	stats   *ReadStats
	err     error
}

// Records reads every file. The first failing file, in path order, fails
// the whole source.
func (fs *FileSource) Records(ctx context.Context) ([]*models.Record, error) {
	if len(fs.paths) == 0 {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "input files", nil, nil)
	}

	results := make([]fileResult, len(fs.paths))
	semaphore := make(chan struct{}, fs.maxConcurrency)
	var wg sync.WaitGroup

	for i, path := range fs.paths {
		wg.Add(1)

		go func(i int, path string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			records, stats, err := fs.reader.ReadFile(ctx, path)
			results[i] = fileResult{records: records, stats: stats, err: err}
		}(i, path)
	}
	wg.Wait()

	var all []*models.Record
	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		all = append(all, r.records...)
	}
	return all, nil
}
