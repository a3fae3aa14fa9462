package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level はログレベルを表す
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel は文字列をログレベルに変換する（大文字小文字は区別しない）
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO", "":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// 出力フォーマット
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config はロガーの設定
type Config struct {
	Level  Level
	Format string // "text" または "json"

	// File が空でなければ lumberjack でローテートされるファイルに出力する
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Logger はスレッドセーフなロガー
type Logger struct {
	level  *slog.LevelVar
	minLvl atomic.Int32
	slog   *slog.Logger

	closeOnce sync.Once
	closer    io.Closer
}

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(New(os.Stdout, LevelInfo))
}

// Default はデフォルトのロガーを返す
func Default() *Logger {
	return defaultLogger.Load()
}

// SetDefault はデフォルトのロガーを差し替える
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger.Store(l)
	}
}

// New はテキスト形式で out に書き込むロガーを作成する
func New(out io.Writer, minLevel Level) *Logger {
	return newLogger(out, minLevel, FormatText, nil)
}

// NewWithConfig は設定に従ってロガーを作成する
func NewWithConfig(cfg Config) (*Logger, error) {
	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = FormatText
	}
	if format != FormatText && format != FormatJSON {
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}

	if cfg.File == "" {
		return newLogger(os.Stdout, cfg.Level, format, nil), nil
	}

	lj := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return newLogger(lj, cfg.Level, format, lj), nil
}

func newLogger(out io.Writer, minLevel Level, format string, closer io.Closer) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(minLevel.slogLevel())
	opts := &slog.HandlerOptions{Level: lv}

	var h slog.Handler
	if format == FormatJSON {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}

	l := &Logger{
		level:  lv,
		slog:   slog.New(h),
		closer: closer,
	}
	l.minLvl.Store(int32(minLevel))
	return l
}

// SetLevel はログレベルを設定する
func (l *Logger) SetLevel(level Level) {
	l.minLvl.Store(int32(level))
	l.level.Set(level.slogLevel())
}

// Level は現在のログレベルを返す
func (l *Logger) Level() Level {
	return Level(l.minLvl.Load())
}

// Close はファイル出力を閉じる。ファイルを使っていない場合は何もしない
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.closer != nil {
			err = l.closer.Close()
		}
	})
	return err
}

// log は指定されたレベルでログを出力する
func (l *Logger) log(level Level, component string, format string, args ...any) {
	ctx := context.Background()
	lvl := level.slogLevel()
	if !l.slog.Enabled(ctx, lvl) {
		return
	}

	msg := fmt.Sprintf(format, args...)
	if component != "" {
		l.slog.Log(ctx, lvl, msg, slog.String("component", component))
	} else {
		l.slog.Log(ctx, lvl, msg)
	}
}

// Debug はデバッグログを出力する
func (l *Logger) Debug(component string, format string, args ...any) {
	l.log(LevelDebug, component, format, args...)
}

// Info は情報ログを出力する
func (l *Logger) Info(component string, format string, args ...any) {
	l.log(LevelInfo, component, format, args...)
}

// Warn は警告ログを出力する
func (l *Logger) Warn(component string, format string, args ...any) {
	l.log(LevelWarn, component, format, args...)
}

// Error はエラーログを出力する
func (l *Logger) Error(component string, format string, args ...any) {
	l.log(LevelError, component, format, args...)
}

// グローバル関数（デフォルトロガーを使用）

// Debug はデバッグログを出力する
func Debug(component string, format string, args ...any) {
	Default().Debug(component, format, args...)
}

// Info は情報ログを出力する
func Info(component string, format string, args ...any) {
	Default().Info(component, format, args...)
}

// Warn は警告ログを出力する
func Warn(component string, format string, args ...any) {
	Default().Warn(component, format, args...)
}

// Error はエラーログを出力する
func Error(component string, format string, args ...any) {
	Default().Error(component, format, args...)
}
