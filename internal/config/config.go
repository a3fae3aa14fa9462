package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"simple-server/internal/logger"
	"simple-server/internal/responder"
	"simple-server/internal/server"
	"simple-server/internal/worker"
)

// FileConfig は設定ファイルの構造
type FileConfig struct {
	Pool   PoolConfig   `yaml:"pool" json:"pool"`
	Server ServerConfig `yaml:"server" json:"server"`
	Admin  AdminConfig  `yaml:"admin" json:"admin"`
	Log    LogConfig    `yaml:"log" json:"log"`
}

// PoolConfig はワーカープール設定
type PoolConfig struct {
	Workers int `yaml:"workers" json:"workers" validate:"gte=0"` // 0 で CPU 数
}

// ServerConfig は TCP サーバー設定
type ServerConfig struct {
	Addr           string  `yaml:"addr" json:"addr" validate:"required,listen_addr"`
	MaxConnections int     `yaml:"max_connections" json:"max_connections" validate:"gte=0"`
	MaxOpenConns   int     `yaml:"max_open_conns" json:"max_open_conns" validate:"gte=0"`
	AcceptRate     float64 `yaml:"accept_rate" json:"accept_rate" validate:"gte=0"`
	AcceptBurst    int     `yaml:"accept_burst" json:"accept_burst" validate:"gte=0"`
	SlowDelay      string  `yaml:"slow_delay" json:"slow_delay" validate:"omitempty,duration"`
	ReadBuffer     int     `yaml:"read_buffer" json:"read_buffer" validate:"gte=0"`
	ContentDir     string  `yaml:"content_dir" json:"content_dir" validate:"omitempty,dir"`
	ReadTimeout    string  `yaml:"read_timeout" json:"read_timeout" validate:"omitempty,duration"`   // "0s" で無期限
	WriteTimeout   string  `yaml:"write_timeout" json:"write_timeout" validate:"omitempty,duration"` // "0s" で無期限
}

// AdminConfig は管理 API 設定
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr" validate:"required_if=Enabled true,omitempty,listen_addr"`
}

// LogConfig はログ設定
type LogConfig struct {
	Level      string `yaml:"level" json:"level" validate:"omitempty,log_level"`
	Format     string `yaml:"format" json:"format" validate:"omitempty,oneof=text json"`
	File       string `yaml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days" validate:"gte=0"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// Default はデフォルト値で埋めた設定を返す
func Default() *FileConfig {
	return &FileConfig{
		Server: ServerConfig{
			Addr:         "127.0.0.1:7878",
			AcceptBurst:  1,
			SlowDelay:    "5s",
			ReadBuffer:   1024,
			ReadTimeout:  "5s",
			WriteTimeout: "5s",
		},
		Admin: AdminConfig{
			Addr: "127.0.0.1:9090",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     logger.FormatText,
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// LoadFile は設定ファイルを読み込む
// ファイルに書かれていない項目はデフォルト値のまま残る
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if len(bytes.TrimSpace(data)) == 0 {
			break
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return config, nil
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
			d, err := time.ParseDuration(fl.Field().String())
			return err == nil && d >= 0
		})
		_ = v.RegisterValidation("listen_addr", func(fl validator.FieldLevel) bool {
			_, _, err := net.SplitHostPort(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("log_level", func(fl validator.FieldLevel) bool {
			_, err := logger.ParseLevel(fl.Field().String())
			return err == nil
		})
		validate = v
	})
	return validate
}

// Validate は設定を検証する
func (f *FileConfig) Validate() error {
	err := getValidator().Struct(f)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// describe は検証エラーを "server.max_connections must be non-negative" の形にする
func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}

	switch fe.Tag() {
	case "gte":
		return fmt.Sprintf("%s must be non-negative", field)
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "duration":
		return fmt.Sprintf("%s must be a non-negative duration, got %q", field, fe.Value())
	case "listen_addr":
		return fmt.Sprintf("%s must be host:port, got %q", field, fe.Value())
	case "log_level":
		return fmt.Sprintf("%s must be one of debug, info, warn, error, got %q", field, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s, got %q", field, fe.Param(), fe.Value())
	case "dir":
		return fmt.Sprintf("%s must be an existing directory, got %q", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// ToPoolConfig は FileConfig を worker.PoolConfig に変換する
func (f *FileConfig) ToPoolConfig() worker.PoolConfig {
	config := worker.DefaultPoolConfig()
	if f.Pool.Workers > 0 {
		config.NumWorkers = f.Pool.Workers
	}
	return config
}

// ToServerConfig は FileConfig を server.Config に変換する
func (f *FileConfig) ToServerConfig() (server.Config, error) {
	sc := f.Server
	config := server.DefaultConfig()

	if sc.Addr != "" {
		config.Addr = sc.Addr
	}
	config.MaxConnections = sc.MaxConnections
	config.MaxOpenConns = sc.MaxOpenConns
	config.AcceptRate = sc.AcceptRate
	if sc.AcceptBurst > 0 {
		config.AcceptBurst = sc.AcceptBurst
	}

	rc := responder.DefaultConfig()
	if sc.SlowDelay != "" {
		d, err := time.ParseDuration(sc.SlowDelay)
		if err != nil {
			return config, fmt.Errorf("invalid slow_delay: %w", err)
		}
		rc.SlowDelay = d
	}
	if sc.ReadBuffer > 0 {
		rc.ReadBufferSize = sc.ReadBuffer
	}
	if sc.ReadTimeout != "" {
		d, err := time.ParseDuration(sc.ReadTimeout)
		if err != nil {
			return config, fmt.Errorf("invalid read_timeout: %w", err)
		}
		rc.ReadTimeout = d
	}
	if sc.WriteTimeout != "" {
		d, err := time.ParseDuration(sc.WriteTimeout)
		if err != nil {
			return config, fmt.Errorf("invalid write_timeout: %w", err)
		}
		rc.WriteTimeout = d
	}
	rc.ContentDir = sc.ContentDir
	config.Responder = rc

	return config, nil
}

// ToLoggerConfig は FileConfig を logger.Config に変換する
func (f *FileConfig) ToLoggerConfig() (logger.Config, error) {
	lc := f.Log
	level, err := logger.ParseLevel(lc.Level)
	if err != nil {
		return logger.Config{}, err
	}

	return logger.Config{
		Level:      level,
		Format:     lc.Format,
		File:       lc.File,
		MaxSizeMB:  lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAgeDays: lc.MaxAgeDays,
		Compress:   lc.Compress,
	}, nil
}
