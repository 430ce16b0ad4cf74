package publisher

import (
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig describes a size-rotated file that published messages are appended to.
type FileConfig struct {
	Path       string `json:"path" yaml:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty"`
	Compress   bool   `json:"compress,omitempty" yaml:"compress,omitempty"`
}

// DefaultFileMaxSizeMB is the size at which the output file is rotated when none is configured.
const DefaultFileMaxSizeMB = 100

// FileSink is a JSONLinesSink backed by a rotating file.
type FileSink struct {
	*JSONLinesSink
	file *lumberjack.Logger
}

// NewFileSink opens (lazily, on first write) the configured file.
func NewFileSink(cfg FileConfig) *FileSink {
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = DefaultFileMaxSizeMB
	}
	file := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
	return &FileSink{JSONLinesSink: NewJSONLinesSink(file), file: file}
}

// Rotate closes the current file and starts a new one.
func (s *FileSink) Rotate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Rotate()
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
