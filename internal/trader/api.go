package trader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"trading-desk-go/internal/database"
	"trading-desk-go/internal/portfolio"
)

// APIServer exposes the control surface over HTTP.
type APIServer struct {
	echo    *echo.Echo
	addr    string
	orch    *Orchestrator
	store   *database.Store
	metrics http.Handler
	stream  http.Handler
	baseCtx context.Context
	logger  *zap.Logger
}

// NewAPIServer creates a server. metrics and stream may be nil.
func NewAPIServer(port int, orch *Orchestrator, store *database.Store, metrics, stream http.Handler, logger *zap.Logger) *APIServer {
	s := &APIServer{
		echo:    echo.New(),
		addr:    fmt.Sprintf(":%d", port),
		orch:    orch,
		store:   store,
		metrics: metrics,
		stream:  stream,
		baseCtx: context.Background(),
		logger:  logger.Named("api-server"),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("Request handled",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	}))
	s.RegisterRoutes(s.echo)
	return s
}

// RegisterRoutes mounts the control surface on e.
func (s *APIServer) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", s.health)
	e.GET("/status", s.status)
	e.POST("/start", s.start)
	e.POST("/stop", s.stop)
	e.POST("/reset", s.reset)
	e.POST("/segments/:name/run", s.runSegment)
	e.GET("/trades", s.trades)
	e.GET("/positions", s.positions)
	e.GET("/cycles", s.cycles)
	e.GET("/statistics", s.statistics)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics))
	}
	if s.stream != nil {
		e.GET("/ws", echo.WrapHandler(s.stream))
	}
}

// Handler returns the HTTP handler.
func (s *APIServer) Handler() http.Handler {
	return s.echo
}

// Start runs the HTTP server in a new goroutine. ctx bounds schedulers
// started through the API.
func (s *APIServer) Start(ctx context.Context) {
	s.baseCtx = ctx
	s.logger.Info("Starting API server", zap.String("address", s.addr))
	go func() {
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.echo.Shutdown(ctx)
}

func (s *APIServer) health(c echo.Context) error {
	snap := s.orch.Health()
	if snap.Shutdown {
		return c.JSON(http.StatusServiceUnavailable, snap)
	}
	return c.String(http.StatusOK, "OK")
}

func (s *APIServer) status(c echo.Context) error {
	return c.JSON(http.StatusOK, s.orch.Status())
}

func (s *APIServer) start(c echo.Context) error {
	names := c.QueryParams()["segment"]
	if err := s.orch.Start(s.baseCtx, names...); err != nil {
		return s.errorResponse(c, err, nil)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "started"})
}

func (s *APIServer) stop(c echo.Context) error {
	if err := s.orch.Stop(); err != nil {
		s.logger.Error("Failed to stop scheduler", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *APIServer) reset(c echo.Context) error {
	s.orch.Reset()
	return c.JSON(http.StatusOK, s.orch.Health())
}

func (s *APIServer) runSegment(c echo.Context) error {
	ctx := context.WithoutCancel(c.Request().Context())
	cycle, err := s.orch.RunOnce(ctx, c.Param("name"))
	if err != nil {
		var body any
		if cycle != nil {
			body = cycle
		}
		return s.errorResponse(c, err, body)
	}
	return c.JSON(http.StatusOK, map[string]any{"cycle": cycle})
}

func (s *APIServer) errorResponse(c echo.Context, err error, body any) error {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrUnknownSegment):
		code = http.StatusNotFound
	case errors.Is(err, ErrCycleInProgress), errors.Is(err, ErrAlreadyRunning):
		code = http.StatusConflict
	case errors.Is(err, ErrDailyQuotaExceeded):
		code = http.StatusTooManyRequests
	case errors.Is(err, ErrShutdown):
		code = http.StatusServiceUnavailable
	}
	resp := map[string]any{"error": err.Error()}
	if body != nil {
		resp["cycle"] = body
	}
	return c.JSON(code, resp)
}

func (s *APIServer) trades(c echo.Context) error {
	ctx := c.Request().Context()
	trades, err := s.store.Trades(ctx)
	if err != nil {
		s.logger.Error("Failed to get trades from database", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get trades"})
	}
	if n := limitParam(c, 100); len(trades) > n {
		trades = trades[len(trades)-n:]
	}
	// Most recent first.
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	return c.JSON(http.StatusOK, trades)
}

func (s *APIServer) positions(c echo.Context) error {
	positions, err := s.store.Positions(c.Request().Context())
	if err != nil {
		s.logger.Error("Failed to get positions from database", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get positions"})
	}
	return c.JSON(http.StatusOK, positions)
}

func (s *APIServer) cycles(c echo.Context) error {
	cycles, err := s.store.RecentCycles(c.Request().Context(), c.QueryParam("segment"), limitParam(c, 20))
	if err != nil {
		s.logger.Error("Failed to get cycles from database", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get cycles"})
	}
	return c.JSON(http.StatusOK, cycles)
}

func (s *APIServer) statistics(c echo.Context) error {
	ctx := c.Request().Context()
	trades, err := s.store.Trades(ctx)
	if err != nil {
		s.logger.Error("Failed to get trades for statistics", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to calculate statistics"})
	}
	stats := portfolio.ComputeStatistics(trades, time.Now())
	if stats.Latest, err = s.store.LatestSnapshot(ctx); err != nil {
		s.logger.Error("Failed to get latest snapshot", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to calculate statistics"})
	}
	return c.JSON(http.StatusOK, stats)
}

func limitParam(c echo.Context, fallback int) int {
	n, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
