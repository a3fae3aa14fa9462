package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"

	"simple-server/internal/logger"
	"simple-server/internal/responder"
	"simple-server/internal/worker"
)

const component = "server"

// Submitter はジョブを受け付けるプール
type Submitter interface {
	Submit(job worker.Job) error
}

// Config はサーバーの設定
type Config struct {
	Addr           string
	MaxConnections int     // 0 で無制限
	MaxOpenConns   int     // 同時接続数の上限（0 で無制限）
	AcceptRate     float64 // 1秒あたりの accept 上限（0 で無制限）
	AcceptBurst    int
	Responder      responder.Config
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Addr:        "127.0.0.1:7878",
		AcceptBurst: 1,
		Responder:   responder.DefaultConfig(),
	}
}

// Server は TCP 接続を受け付けてプールに渡す
type Server struct {
	config    Config
	pool      Submitter
	responder *responder.Responder
	limiter   *rate.Limiter

	mu       sync.RWMutex
	listener net.Listener

	accepted atomic.Uint64
	handled  atomic.Uint64
	failed   atomic.Uint64
}

// New は新しいサーバーを作成する
func New(config Config, pool Submitter) (*Server, error) {
	if pool == nil {
		return nil, errors.New("server requires a worker pool")
	}

	r, err := responder.New(config.Responder)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:    config,
		pool:      pool,
		responder: r,
	}
	if config.AcceptRate > 0 {
		burst := config.AcceptBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(config.AcceptRate), burst)
	}
	return s, nil
}

// Listen は設定されたアドレスで待ち受けを開始する
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return ln, nil
}

// ListenAndServe は待ち受けを開始し、Serve を呼び出す
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve は ctx がキャンセルされるか MaxConnections に達するまで接続を受け付ける
// 戻る前に ln を閉じる。処理中の応答はプール側で完了する
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.config.MaxOpenConns > 0 {
		ln = netutil.LimitListener(ln, s.config.MaxOpenConns)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	defer ln.Close()
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	logger.Info(component, "Listening on %s", ln.Addr())

	for {
		if limit := s.config.MaxConnections; limit > 0 && s.accepted.Load() >= uint64(limit) {
			logger.Info(component, "Served %d connections, no longer accepting", limit)
			return nil
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to accept connection: %w", err)
		}

		s.accepted.Add(1)
		s.dispatch(conn)
	}
}

// dispatch は接続を1つのジョブとしてプールに投入する
func (s *Server) dispatch(conn net.Conn) {
	requestID := uuid.NewString()
	logger.Debug(component, "Accepted %s as request %s", conn.RemoteAddr(), requestID)

	err := s.pool.Submit(func() {
		if err := s.responder.Handle(conn); err != nil {
			s.failed.Add(1)
			logger.Warn(component, "Request %s failed: %v", requestID, err)
			return
		}
		s.handled.Add(1)
		logger.Info(component, "Response sent for request %s", requestID)
	})
	if err != nil {
		s.failed.Add(1)
		logger.Error(component, "Failed to submit request %s: %v", requestID, err)
		_ = conn.Close()
	}
}

// Addr は待ち受け中のアドレスを返す（Serve 前は nil）
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Accepted は受け付けた接続数を返す
func (s *Server) Accepted() uint64 {
	return s.accepted.Load()
}

// Handled は応答を返し終えた接続数を返す
func (s *Server) Handled() uint64 {
	return s.handled.Load()
}

// Failed は失敗した接続数を返す
func (s *Server) Failed() uint64 {
	return s.failed.Load()
}
