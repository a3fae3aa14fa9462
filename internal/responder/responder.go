// Package responder answers a single HTTP/1.1 request read from a raw
// connection with one of three static pages.
package responder

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"time"
)

//go:embed static/*
var staticFiles embed.FS

const (
	statusOK       = "HTTP/1.1 200 OK"
	statusNotFound = "HTTP/1.1 404 Not Found"
)

var (
	indexRequest  = []byte("GET / HTTP/1.1\r\n")
	statusRequest = []byte("GET /status HTTP/1.1\r\n")
)

// Config はレスポンダーの設定
type Config struct {
	SlowDelay      time.Duration // /status の応答前に待つ時間
	ReadBufferSize int           // リクエストの読み込み上限（バイト）
	ContentDir     string        // 空の場合は埋め込みページを使う
	ReadTimeout    time.Duration // リクエスト読み込みの期限（0 で無期限）
	WriteTimeout   time.Duration // 応答書き込みの期限（0 で無期限）
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		SlowDelay:      5 * time.Second,
		ReadBufferSize: 1024,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
	}
}

// Route はリクエスト先頭から応答するページを決める
type Route struct {
	StatusLine string
	Page       string
	Slow       bool
}

// Match はリクエストの先頭行からルートを選ぶ
func Match(request []byte) Route {
	switch {
	case bytes.HasPrefix(request, indexRequest):
		return Route{StatusLine: statusOK, Page: "index.html"}
	case bytes.HasPrefix(request, statusRequest):
		return Route{StatusLine: statusOK, Page: "status.html", Slow: true}
	default:
		return Route{StatusLine: statusNotFound, Page: "404.html"}
	}
}

// Responder はページを読み込んで応答を書き出す
type Responder struct {
	config Config
	pages  fs.FS
}

// New は新しい Responder を作成する
func New(config Config) (*Responder, error) {
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = DefaultConfig().ReadBufferSize
	}

	var pages fs.FS
	if config.ContentDir != "" {
		info, err := os.Stat(config.ContentDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open content dir: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("content dir is not a directory: %s", config.ContentDir)
		}
		pages = os.DirFS(config.ContentDir)
	} else {
		sub, err := fs.Sub(staticFiles, "static")
		if err != nil {
			return nil, fmt.Errorf("failed to get static files: %w", err)
		}
		pages = sub
	}

	return &Responder{config: config, pages: pages}, nil
}

// Respond はリクエストに対する応答全体を組み立てる
func (r *Responder) Respond(request []byte) ([]byte, error) {
	route := Match(request)
	if route.Slow && r.config.SlowDelay > 0 {
		time.Sleep(r.config.SlowDelay)
	}

	content, err := fs.ReadFile(r.pages, route.Page)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", route.Page, err)
	}

	return fmt.Appendf(nil, "%s\r\nContent-Length: %d\r\n\r\n%s\r\n",
		route.StatusLine, len(content), content), nil
}

// Handle は接続から1リクエストを読み、応答を書いて接続を閉じる
// 何も送らないクライアントがワーカーを占有し続けないよう読み書きに期限を付ける
func (r *Responder) Handle(conn net.Conn) error {
	defer conn.Close()

	if r.config.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(r.config.ReadTimeout)); err != nil {
			return fmt.Errorf("failed to set read deadline: %w", err)
		}
	}

	buf := make([]byte, r.config.ReadBufferSize)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read request: %w", err)
	}

	resp, err := r.Respond(buf[:n])
	if err != nil {
		return err
	}

	if r.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(r.config.WriteTimeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}

	if _, err := conn.Write(resp); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
