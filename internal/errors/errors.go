package errors

import (
	"fmt"
	"sort"
	"sync"
)

// FileError is a template error located in a file.
type FileError struct {
	File    string `json:"file" yaml:"file"`
	Line    int    `json:"line" yaml:"line"`
	Column  int    `json:"column" yaml:"column"`
	Message string `json:"message" yaml:"message"`
}

// Error implements the error interface
func (fe *FileError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", fe.File, fe.Line, fe.Column, fe.Message)
}

// Collector collects template errors across files. It is safe for concurrent use.
type Collector struct {
	fileErrors []FileError
	mutex      sync.RWMutex
}

// NewCollector creates a new error collector
func NewCollector() *Collector {
	return &Collector{fileErrors: make([]FileError, 0)}
}

// Add adds a file error to the collector
func (c *Collector) Add(err FileError) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.fileErrors = append(c.fileErrors, err)
}

// FileErrors returns all collected file errors ordered by file, line and column
func (c *Collector) FileErrors() []FileError {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	result := make([]FileError, len(c.fileErrors))
	copy(result, c.fileErrors)
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].File != result[j].File {
			return result[i].File < result[j].File
		}
		if result[i].Line != result[j].Line {
			return result[i].Line < result[j].Line
		}
		return result[i].Column < result[j].Column
	})
	return result
}

// HasErrors returns true if there are any errors
func (c *Collector) HasErrors() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.fileErrors) > 0
}

// ErrorsByFile returns errors for a specific file
func (c *Collector) ErrorsByFile(file string) []FileError {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	var fileErrors []FileError
	for _, err := range c.fileErrors {
		if err.File == file {
			fileErrors = append(fileErrors, err)
		}
	}
	return fileErrors
}
