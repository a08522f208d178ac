package categorize

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// OpenRunLog creates the plain-text log file for one classification run. When mirror is non-nil,
// every entry is also written there (usually os.Stderr with -verbose).
func OpenRunLog(path string, level logrus.Level, mirror io.Writer) (*logrus.Logger, io.Closer, error) {
	if path == "" {
		return nil, nil, fmt.Errorf("OpenRunLog: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("OpenRunLog: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("OpenRunLog: open: %w", err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if mirror != nil {
		logger.SetOutput(io.MultiWriter(f, mirror))
	} else {
		logger.SetOutput(f)
	}
	return logger, f, nil
}
