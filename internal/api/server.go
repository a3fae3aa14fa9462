// Package api serves the admin HTTP endpoints of a running worker pool.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/websocket"

	"simple-server/internal/events"
	"simple-server/internal/logger"
	"simple-server/internal/metrics"
	"simple-server/internal/worker"
)

const component = "api"

// Server はAPIサーバー
type Server struct {
	addr     string
	pool     *worker.Pool
	bus      *events.Bus
	gatherer prometheus.Gatherer

	statusInterval time.Duration

	mu        sync.RWMutex
	wsClients map[*websocket.Conn]struct{}

	server *http.Server
}

const defaultStatusInterval = time.Second

// Option は Server の設定を変更する
type Option func(*Server)

// WithStatusInterval はWebSocketクライアントへステータスを送る間隔を設定する
// 0 以下は無視する
func WithStatusInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.statusInterval = d
		}
	}
}

// NewServer は新しいAPIサーバーを作成する
// bus と gatherer は nil でもよい
func NewServer(addr string, pool *worker.Pool, bus *events.Bus, gatherer prometheus.Gatherer, opts ...Option) *Server {
	s := &Server{
		addr:           addr,
		pool:           pool,
		bus:            bus,
		gatherer:       gatherer,
		statusInterval: defaultStatusInterval,
		wsClients:      make(map[*websocket.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	mux.Handle("/ws", websocket.Handler(s.handleWebSocket))

	return mux
}

// Start はサーバーを開始し、ctx がキャンセルされるまでブロックする
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve は ln で待ち受ける
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	// バックグラウンドでイベントとステータスを配信
	go s.broadcastLoop(ctx)

	logger.Info(component, "API Server starting on http://%s", ln.Addr())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.closeClients()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// WorkerInfo はワーカー情報
type WorkerInfo struct {
	ID    int    `json:"id"`
	State string `json:"state"`
}

// StatusResponse はステータスレスポンス
type StatusResponse struct {
	Size        int          `json:"size"`
	LiveWorkers int64        `json:"live_workers"`
	BusyWorkers int64        `json:"busy_workers"`
	Pending     int          `json:"pending"`
	Closed      bool         `json:"closed"`
	Workers     []WorkerInfo `json:"workers"`
}

func (s *Server) status() StatusResponse {
	m := s.pool.Metrics()
	resp := StatusResponse{
		Size:        s.pool.Size(),
		LiveWorkers: m.LiveWorkers(),
		BusyWorkers: m.BusyWorkers(),
		Pending:     s.pool.Pending(),
		Closed:      s.pool.Closed(),
	}
	for _, w := range s.pool.Workers() {
		resp.Workers = append(resp.Workers, WorkerInfo{
			ID:    w.ID(),
			State: w.State().String(),
		})
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.status())
}

// MetricsResponse はメトリクスレスポンス
type MetricsResponse struct {
	metrics.Snapshot
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	P99LatencyMs float64 `json:"p99_latency_ms"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.pool.Metrics().Snapshot()
	s.writeJSON(w, MetricsResponse{
		Snapshot:     snap,
		AvgLatencyMs: float64(snap.AverageLatency) / float64(time.Millisecond),
		P99LatencyMs: float64(snap.P99Latency) / float64(time.Millisecond),
	})
}

// Message はWebSocketで送るメッセージ
type Message struct {
	Type   string          `json:"type"`
	Event  *events.Event   `json:"event,omitempty"`
	Status *StatusResponse `json:"status,omitempty"`
}

func (s *Server) handleWebSocket(ws *websocket.Conn) {
	s.mu.Lock()
	s.wsClients[ws] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.wsClients, ws)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	// クライアントが切断するまで読み捨てる
	for {
		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			break
		}
	}
}

// ClientCount は接続中のWebSocketクライアント数を返す
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.wsClients)
}

func (s *Server) closeClients() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ws := range s.wsClients {
		_ = ws.Close()
	}
}

func (s *Server) broadcast(msg Message) {
	s.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(s.wsClients))
	for ws := range s.wsClients {
		clients = append(clients, ws)
	}
	s.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error(component, "Failed to encode message: %v", err)
		return
	}

	for _, ws := range clients {
		if err := websocket.Message.Send(ws, string(data)); err != nil {
			logger.Debug(component, "Failed to send to %s: %v", ws.Request().RemoteAddr, err)
		}
	}
}

func (s *Server) broadcastLoop(ctx context.Context) {
	var sub <-chan events.Event
	if s.bus != nil {
		sub = s.bus.Subscribe()
		defer s.bus.Unsubscribe(sub)
	}

	ticker := time.NewTicker(s.statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				sub = nil
				continue
			}
			s.broadcast(Message{Type: "event", Event: &ev})
		case <-ticker.C:
			status := s.status()
			s.broadcast(Message{Type: "status", Status: &status})
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error(component, "Failed to encode JSON: %v", err)
	}
}
