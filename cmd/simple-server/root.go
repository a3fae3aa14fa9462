package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"simple-server/internal/api"
	"simple-server/internal/config"
	"simple-server/internal/events"
	"simple-server/internal/logger"
	"simple-server/internal/server"
	"simple-server/internal/worker"
)

const envPrefix = "SIMPLE_SERVER"

// newRootCmd はルートコマンドを作成する
func newRootCmd() *cobra.Command {
	return newCommand(viper.New())
}

// newCommand はフラグと環境変数を v に結び付けたコマンドを作成する
func newCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simple-server [flags]",
		Short: "Serve static pages from a fixed-size worker pool",
		Long: `simple-server accepts TCP connections and answers each one with a static
HTML page. Connections are handed to a fixed number of worker goroutines, so
a slow request occupies one worker while the others keep serving.`,
		Example: `  # デフォルト設定で起動
  simple-server

  # 2接続だけ処理して終了
  simple-server --workers 4 --max-connections 2

  # 設定ファイルから起動し、管理APIを有効化
  simple-server --config server.yaml --admin`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "設定エラー: %v\n", err)
				return err
			}
			if err := run(cmd.Context(), cfg); err != nil {
				logger.Error("", "サーバーエラー: %v", err)
				return err
			}
			return nil
		},
	}

	defineFlags(cmd.Flags())
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		panic(fmt.Sprintf("failed to bind flags: %v", err))
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return cmd
}

// defineFlags はコマンドラインフラグを定義する
func defineFlags(fs *flag.FlagSet) {
	defaults := config.Default()

	fs.String("config", "", "設定ファイルパス (YAML/JSON)")
	fs.String("addr", defaults.Server.Addr, "待ち受けアドレス")
	fs.Int("workers", defaults.Pool.Workers, "ワーカー数 (0 で CPU 数)")
	fs.Int("max-connections", defaults.Server.MaxConnections, "この数の接続を処理したら終了する (0 で無制限)")
	fs.Int("max-open-conns", defaults.Server.MaxOpenConns, "同時に開く接続数の上限 (0 で無制限)")
	fs.Float64("accept-rate", defaults.Server.AcceptRate, "1秒あたりの accept 上限 (0 で無制限)")
	fs.Duration("slow-delay", 0, "GET /status の応答前に待つ時間 (デフォルト 5s)")
	fs.Duration("read-timeout", 0, "リクエスト読み込みの期限 (デフォルト 5s)")
	fs.Duration("write-timeout", 0, "応答書き込みの期限 (デフォルト 5s)")
	fs.String("content-dir", defaults.Server.ContentDir, "HTML ページのディレクトリ (空なら埋め込みページ)")
	fs.Bool("admin", defaults.Admin.Enabled, "管理APIを有効化")
	fs.String("admin-addr", defaults.Admin.Addr, "管理APIのアドレス")
	fs.String("log-level", defaults.Log.Level, "ログレベル (debug, info, warn, error)")
	fs.String("log-format", defaults.Log.Format, "ログ形式 (text, json)")
	fs.String("log-file", defaults.Log.File, "ログファイル (空なら標準出力)")
}

// loadConfig は設定ファイル、環境変数、フラグの順に設定を重ねる
func loadConfig(v *viper.Viper) (*config.FileConfig, error) {
	cfg := config.Default()
	if path := v.GetString("config"); path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	applyOverrides(v, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyOverrides は明示的に指定されたフラグと環境変数だけを反映する
func applyOverrides(v *viper.Viper, cfg *config.FileConfig) {
	if v.IsSet("addr") {
		cfg.Server.Addr = v.GetString("addr")
	}
	if v.IsSet("workers") {
		cfg.Pool.Workers = v.GetInt("workers")
	}
	if v.IsSet("max-connections") {
		cfg.Server.MaxConnections = v.GetInt("max-connections")
	}
	if v.IsSet("max-open-conns") {
		cfg.Server.MaxOpenConns = v.GetInt("max-open-conns")
	}
	if v.IsSet("accept-rate") {
		cfg.Server.AcceptRate = v.GetFloat64("accept-rate")
	}
	if v.IsSet("slow-delay") {
		cfg.Server.SlowDelay = v.GetDuration("slow-delay").String()
	}
	if v.IsSet("read-timeout") {
		cfg.Server.ReadTimeout = v.GetDuration("read-timeout").String()
	}
	if v.IsSet("write-timeout") {
		cfg.Server.WriteTimeout = v.GetDuration("write-timeout").String()
	}
	if v.IsSet("content-dir") {
		cfg.Server.ContentDir = v.GetString("content-dir")
	}
	if v.IsSet("admin") {
		cfg.Admin.Enabled = v.GetBool("admin")
	}
	if v.IsSet("admin-addr") {
		cfg.Admin.Addr = v.GetString("admin-addr")
	}
	if v.IsSet("log-level") {
		cfg.Log.Level = v.GetString("log-level")
	}
	if v.IsSet("log-format") {
		cfg.Log.Format = v.GetString("log-format")
	}
	if v.IsSet("log-file") {
		cfg.Log.File = v.GetString("log-file")
	}
}

// run はプール、TCP サーバー、管理APIを起動し、ctx がキャンセルされるか
// サーバーが接続の受け付けを終えるまでブロックする
func run(ctx context.Context, cfg *config.FileConfig) error {
	lc, err := cfg.ToLoggerConfig()
	if err != nil {
		return err
	}
	log, err := logger.NewWithConfig(lc)
	if err != nil {
		return err
	}
	logger.SetDefault(log)
	defer log.Close()

	sc, err := cfg.ToServerConfig()
	if err != nil {
		return err
	}

	bus := events.NewBus()
	defer bus.Close()

	pc := cfg.ToPoolConfig()
	pc.EventBus = bus
	pool, err := worker.NewPoolWithConfig(pc)
	if err != nil {
		return err
	}
	// エラーで早期に戻る場合も全ワーカーを join する（Shutdown は冪等）
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := pool.RegisterMetrics(reg); err != nil {
		return err
	}

	srv, err := server.New(sc, pool)
	if err != nil {
		return err
	}
	ln, err := srv.Listen()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		// max-connections に達したら管理APIも止める
		defer cancel()
		return srv.Serve(runCtx, ln)
	})

	if cfg.Admin.Enabled {
		admin := api.NewServer(cfg.Admin.Addr, pool, bus, reg)
		g.Go(func() error {
			return admin.Start(runCtx)
		})
	}

	err = g.Wait()

	// 残りの応答を書き終えてから集計する
	pool.Shutdown()
	logger.Info("", "Served %d connections (%d handled, %d failed)",
		srv.Accepted(), srv.Handled(), srv.Failed())
	return err
}
