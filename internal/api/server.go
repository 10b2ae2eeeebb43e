package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"ContractHub/internal/chain"
	xerrors "ContractHub/internal/errors"
	"ContractHub/internal/observability/metrics"
	"ContractHub/internal/web3"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server 负责暴露只读的 REST 接口，用于查询网络状态与解析合约。
type Server struct {
	addr    string
	core    *chain.Interface
	metrics *metrics.Metrics
	router  chi.Router
	token   string
}

// Option 调整 Server 的可选行为。
type Option func(*Server)

// WithAPIToken 要求 /api/v1 下的请求携带 Bearer 令牌。空字符串表示不校验。
func WithAPIToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// NewServer 构造 API 服务实例并注册路由。metrics 为空时不暴露 /metrics。
func NewServer(addr string, core *chain.Interface, m *metrics.Metrics, opts ...Option) *Server {
	s := &Server{addr: addr, core: core, metrics: m, router: chi.NewRouter()}
	for _, opt := range opts {
		opt(s)
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.observe)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/network", s.handleNetwork)
		r.Get("/contracts/{name}", s.handleContract)
		r.Get("/addresses/{address}", s.handleAddress)
	})
	if m != nil {
		s.router.Method(http.MethodGet, "/metrics", m.Handler())
	}
	return s
}

// Handler 返回路由，便于测试或嵌入其他服务。
func (s *Server) Handler() http.Handler { return s.router }

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.router),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

type healthResponse struct {
	Status    string `json:"status"`
	Network   string `json:"network"`
	Connected bool   `json:"connected"`
}

type contractResponse struct {
	Name    string          `json:"name"`
	Address string          `json:"address"`
	ABI     json.RawMessage `json:"abi"`
}

type errorResponse struct {
	Code    xerrors.Code `json:"code"`
	Message string       `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Network: s.core.Network(), Connected: s.core.IsConnected(r.Context())}
	status := http.StatusOK
	if !resp.Connected {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.core.Client().Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleContract(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	upgradeable := false
	if raw := r.URL.Query().Get("upgradeable"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, xerrors.Wrapf(xerrors.CodeConfiguration, err, "upgradeable 参数无效: %s", raw))
			return
		}
		upgradeable = parsed
	}

	contract, err := s.core.ContractByName(r.Context(), name, upgradeable)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractResponse(contract.Binding))
}

func (s *Server) handleAddress(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		writeError(w, xerrors.Newf(xerrors.CodeConfiguration, "地址格式错误: %s", raw))
		return
	}
	contract, err := s.core.ContractByAddress(r.Context(), common.HexToAddress(raw))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractResponse(contract.Binding))
}

// observe 按路由模板记录请求次数与耗时。
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveHTTPRequest(pattern, r.Method, status, time.Since(start))
	})
}

func toContractResponse(b web3.Binding) contractResponse {
	return contractResponse{Name: b.Name, Address: b.Address.Hex(), ABI: json.RawMessage(b.RawABI)}
}

// statusFor 将错误码映射为 HTTP 状态码。
func statusFor(err error) int {
	switch xerrors.CodeOf(err) {
	case xerrors.CodeNotFound, xerrors.CodeUnknownContract:
		return http.StatusNotFound
	case xerrors.CodeAmbiguousRecord, xerrors.CodeAmbiguousDispatcher, xerrors.CodeNoDispatcherTarget:
		return http.StatusConflict
	case xerrors.CodeConfiguration:
		return http.StatusBadRequest
	case xerrors.CodeConnection:
		return http.StatusServiceUnavailable
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Code: xerrors.CodeOf(err), Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
