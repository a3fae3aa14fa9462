// Package logger provides a leveled, thread-safe logging facility built on
// log/slog.
//
// The logger supports four levels: Debug, Info, Warn, and Error. Each entry
// carries a timestamp, level, optional component (for example "worker-3" or
// "pool"), and message. Output is either slog's text or JSON format, written
// to an io.Writer or to a size-rotated file.
//
// # Basic Usage
//
// Using the default logger:
//
//	logger.Info("", "Server started")
//	logger.Info("worker-1", "Received job")
//	logger.Error("worker-1", "Job panicked: %v", r)
//
// Creating a custom logger:
//
//	l := logger.New(os.Stderr, logger.LevelDebug)
//	l.Debug("worker-1", "Debug message")
//
// Logging to a rotated file:
//
//	l, err := logger.NewWithConfig(logger.Config{
//	    Level:     logger.LevelInfo,
//	    Format:    logger.FormatJSON,
//	    File:      "/var/log/simple-server.log",
//	    MaxSizeMB: 100,
//	})
//	defer l.Close()
//	logger.SetDefault(l)
//
// # Log Levels
//
// Messages below the configured level are filtered:
//   - LevelDebug: all messages
//   - LevelInfo: Info, Warn, Error
//   - LevelWarn: Warn, Error
//   - LevelError: Error only
//
// # Thread Safety
//
// All logging operations are safe for concurrent use.
package logger
