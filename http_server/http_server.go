package http_server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/danthegoodman1/tablesync/crdb"
	"github.com/danthegoodman1/tablesync/gologger"
	"github.com/danthegoodman1/tablesync/query_builder"
	"github.com/danthegoodman1/tablesync/table"
	"github.com/danthegoodman1/tablesync/utils"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
)

var logger = gologger.NewComponentLogger("http_server")

type (
	// SessionRunner runs f with a database session, retrying where it can.
	SessionRunner func(ctx context.Context, f func(ctx context.Context, s query_builder.Session) error) error

	HTTPServer struct {
		Echo *echo.Echo

		cfg        *utils.Config
		layout     *table.Layout
		runSession SessionRunner
		// audit is set when the bookkeeping migrations are known to be applied.
		audit bool
	}

	CustomValidator struct {
		validator *validator.Validate
	}
)

// PoolSessionRunner runs on connections from crdb.PGPool through
// crdb.ReliableExec.
func PoolSessionRunner(tryTimeout time.Duration) SessionRunner {
	return func(ctx context.Context, f func(ctx context.Context, s query_builder.Session) error) error {
		return crdb.ReliableExec(ctx, crdb.PGPool, tryTimeout, func(ctx context.Context, conn *pgxpool.Conn) error {
			return f(ctx, conn)
		})
	}
}

// NewHTTPServer builds the server and its routes without listening.
func NewHTTPServer(cfg *utils.Config, runSession SessionRunner, audit bool) *HTTPServer {
	s := &HTTPServer{
		Echo:       echo.New(),
		cfg:        cfg,
		layout:     table.DefaultLayout(),
		runSession: runSession,
		audit:      audit,
	}
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.JSONSerializer = &utils.NoEscapeJSONSerializer{}

	s.Echo.Use(CreateReqContext)
	s.Echo.Use(LoggerMiddleware)
	s.Echo.Use(middleware.CORS())
	s.Echo.Validator = &CustomValidator{validator: validator.New()}

	// technical - no auth
	s.Echo.GET("/hc", s.HealthCheck)

	s.Echo.POST("/load", ccHandler(s.LoadHandler))

	tables := s.Echo.Group("/tables/:ns/:table")
	tables.GET("/columns", ccHandler(s.GetColumns))
	tables.GET("/count", ccHandler(s.CountRows))
	tables.POST("/rows", ccHandler(s.ReadRows))
	tables.DELETE("", ccHandler(s.DropTable))
	tables.POST("/snapshot", ccHandler(s.SnapshotHandler))

	return s
}

func StartHTTPServer(cfg *utils.Config, audit bool) *HTTPServer {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.HTTPPort))
	if err != nil {
		logger.Error().Err(err).Msg("error creating tcp listener, exiting")
		os.Exit(1)
	}
	s := NewHTTPServer(cfg, PoolSessionRunner(crdb.StandardContextTimeout), audit)

	s.Echo.Listener = listener
	go func() {
		logger.Info().Msg("starting h2c server on " + listener.Addr().String())
		err := s.Echo.StartH2CServer("", &http2.Server{})
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("failed to start h2c server, exiting")
			os.Exit(1)
		}
	}()

	return s
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func ValidateRequest(c echo.Context, s interface{}) error {
	if err := c.Bind(s); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(s); err != nil {
		return err
	}
	return nil
}

func (*HTTPServer) HealthCheck(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	err := s.Echo.Shutdown(ctx)
	return err
}

func LoggerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if err := next(c); err != nil {
			// default handler
			c.Error(err)
		}
		stop := time.Since(start)
		// Log otherwise
		logger := zerolog.Ctx(c.Request().Context())
		req := c.Request()
		res := c.Response()

		p := req.URL.Path
		if p == "" {
			p = "/"
		}

		cl := req.Header.Get(echo.HeaderContentLength)
		if cl == "" {
			cl = "0"
		}
		logger.Debug().Str("method", req.Method).Str("remote_ip", c.RealIP()).Str("req_uri", req.RequestURI).Str("handler_path", c.Path()).Str("path", p).Int("status", res.Status).Int64("latency_ns", int64(stop)).Str("protocol", req.Proto).Str("bytes_in", cl).Int64("bytes_out", res.Size).Msg("req recived")
		return nil
	}
}
