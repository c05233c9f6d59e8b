package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/roach88/ferrule/internal/srctree"
)

// LoadMode controls how errors are handled while loading source trees.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the source trees found under the given paths.
type LoadResult struct {
	Trees     []*srctree.Module
	FileCount int // Number of tree files found
}

// LoadError represents an error that occurred while loading a tree file.
type LoadError struct {
	Code    string
	Message string
	Path    string
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// treeExts are the file extensions holding encoded source trees.
var treeExts = map[string]bool{".yaml": true, ".yml": true, ".json": true}

// IsTreeFile reports whether path names a source tree file.
func IsTreeFile(path string) bool {
	return treeExts[filepath.Ext(path)]
}

// LoadTrees loads every source tree named by paths. A directory
// contributes all tree files beneath it. Files are loaded in lexical order
// so batches are reproducible.
func LoadTrees(paths []string, mode LoadMode) (*LoadResult, []error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: "path not found", Path: p}}
		}
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing path: %v", err), Path: p}}
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		found, err := FindTreeFiles(p)
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err), Path: p}}
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no source tree files found in %v", paths)}}
	}
	sort.Strings(files)

	result := &LoadResult{FileCount: len(files)}
	var errs []error
	for _, f := range files {
		tree, err := srctree.LoadFile(f)
		if err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeDecodeFailed, Message: err.Error(), Path: f})
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.Trees = append(result.Trees, tree)
	}
	return result, errs
}

// FindTreeFiles walks dir and returns all source tree file paths.
func FindTreeFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsTreeFile(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// Error code constants, unified across all CLI commands. Unit diagnostics
// carry their own E2xx-E5xx codes.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeScanError    = "E002" // Directory scan error
	ErrCodeNoFiles      = "E003" // No source tree files found
	ErrCodeDecodeFailed = "E004" // Tree file could not be decoded
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeUnitsFailed  = "E006" // One or more units failed
	ErrCodeWriteFailed  = "E007" // File write error
	ErrCodeStore        = "E008" // Translation store error
	ErrCodeNondeterm    = "E009" // Replay produced different output
	ErrCodeTestFailed   = "E010" // One or more scenarios failed
)
