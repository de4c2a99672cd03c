// Package web serves the single-page research UI and its JSON twin.
package web

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/m2tx/research_agent/assets"
	"github.com/m2tx/research_agent/internal/agent"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"golang.org/x/sync/errgroup"
)

const (
	defaultRequestTimeout = 2 * time.Minute

	warningEmptyQuery = "Please enter a valid query."
	failureGeneration = "The language model failed to answer, showing the messages produced so far."
	failureRun        = "The research run failed."
)

// Researcher runs one question through the tool-calling loop.
type Researcher interface {
	Run(ctx context.Context, question string) (*agent.Result, error)
}

type Server struct {
	echo           *echo.Echo
	researcher     Researcher
	page           *template.Template
	markdown       goldmark.Markdown
	requestTimeout time.Duration
}

func New(researcher Researcher, requestTimeout time.Duration) (*Server, error) {
	page, err := template.ParseFS(assets.Dir, "index.html")
	if err != nil {
		return nil, errors.Wrap(err, "parse page template")
	}
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	s := &Server{
		echo:           echo.New(),
		researcher:     researcher,
		page:           page,
		markdown:       newMarkdown(),
		requestTimeout: requestTimeout,
	}

	s.echo.Use(middleware.Recover())
	s.echo.Use(logRequests)

	s.echo.GET("/", s.index)
	s.echo.POST("/", s.search)
	s.echo.POST("/api/ask", s.ask)
	s.echo.GET("/healthz", s.healthz)

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// ListenAndServe blocks serving on addr until ctx is cancelled or the
// listener fails.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown", "err", err)
		}
		return nil
	})

	return g.Wait()
}

func (s *Server) index(c *echo.Context) error {
	return s.respondPage(c, http.StatusOK, pageData{})
}

func (s *Server) search(c *echo.Context) error {
	query := c.FormValue("query")
	data := pageData{Query: query}

	if strings.TrimSpace(query) == "" {
		data.Warning = warningEmptyQuery
		return s.respondPage(c, http.StatusOK, data)
	}

	result, err := s.run(c.Request().Context(), query)
	if err != nil {
		data.Failure = failureRun
		if errors.Is(err, agent.ErrGeneration) {
			data.Failure = failureGeneration
		}
	}
	if result != nil {
		views, viewErr := s.views(result.Messages)
		if viewErr != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, viewErr.Error())
		}
		data.Messages = views
	}

	return s.respondPage(c, http.StatusOK, data)
}

type askRequest struct {
	Query string `json:"query"`
}

type askResponse struct {
	*agent.Result
	Error string `json:"error,omitempty"`
}

func (s *Server) ask(c *echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}

	result, err := s.run(c.Request().Context(), req.Query)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, agent.ErrGeneration) {
			status = http.StatusBadGateway
		}
		return c.JSON(status, askResponse{Result: result, Error: err.Error()})
	}

	return c.JSON(http.StatusOK, askResponse{Result: result})
}

func (s *Server) healthz(c *echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *Server) run(ctx context.Context, query string) (*agent.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()
	return s.researcher.Run(ctx, query)
}

func (s *Server) respondPage(c *echo.Context, status int, data pageData) error {
	html, err := s.renderPage(data)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.HTML(status, html)
}

func logRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		start := time.Now()
		err := next(c)
		req := c.Request()
		slog.Info("http request",
			"method", req.Method,
			"path", req.URL.Path,
			"duration", time.Since(start),
			"err", err)
		return err
	}
}
