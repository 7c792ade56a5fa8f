package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	mid "github.com/ndltd-tw/papergraph/internal/server/middleware"
	"github.com/ndltd-tw/papergraph/internal/server/routes"
	"github.com/ndltd-tw/papergraph/internal/util"
	"github.com/ndltd-tw/papergraph/pkg/ai"
	"github.com/ndltd-tw/papergraph/pkg/common"
	"github.com/ndltd-tw/papergraph/pkg/graph"
	"github.com/ndltd-tw/papergraph/pkg/logger"
	"github.com/ndltd-tw/papergraph/pkg/stats"
	"github.com/ndltd-tw/papergraph/pkg/store"
	"github.com/ndltd-tw/papergraph/pkg/store/elastic"
	"github.com/ndltd-tw/papergraph/pkg/store/opensearch"
	"github.com/ndltd-tw/papergraph/pkg/store/pgx"
	"github.com/ndltd-tw/papergraph/pkg/summary"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator reports fields by their query parameter name.
func NewValidator() *CustomValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("query"); name != "" {
			return name
		}
		return fld.Name
	})
	return &CustomValidator{validator: v}
}

func (cv *CustomValidator) Validate(i any) error {
	err := cv.validator.Struct(i)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		reason := "failed on " + fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		return common.NewValidationError("request", fe.Field(), reason)
	}
	return common.NewValidationError("request", "", err.Error())
}

// openStore connects the configured document store.
func openStore(ctx context.Context, cfg Config) (store.DocumentStore, func(), error) {
	switch cfg.StoreAdapter {
	case StoreOpensearch:
		s, err := opensearch.NewStore(opensearch.NewStoreParams{
			Addresses:          cfg.SearchURLs,
			Username:           cfg.SearchUser,
			Password:           cfg.SearchPassword,
			Index:              cfg.SearchIndex,
			InsecureSkipVerify: cfg.SearchInsecure,
			MaxRetries:         3,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	case StoreElasticsearch:
		s, err := elastic.NewStore(elastic.NewStoreParams{
			Addresses:          cfg.SearchURLs,
			Username:           cfg.SearchUser,
			Password:           cfg.SearchPassword,
			Index:              cfg.SearchIndex,
			InsecureSkipVerify: cfg.SearchInsecure,
			MaxRetries:         3,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	case StorePgvector:
		s, err := pgx.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown STORE_ADAPTER %q", cfg.StoreAdapter)
}

// NewApp wires the services around an open document store.
func NewApp(cfg Config, s store.DocumentStore) *mid.App {
	instrumented := store.NewInstrumented(s)

	builder := graph.NewBuilder(instrumented,
		graph.WithRoundDecimal(cfg.SimilarityRoundDecimal),
		graph.WithParallelism(cfg.SimilarityParallelism),
		graph.WithMetrics(true),
	)

	opts := []summary.ServiceOption{summary.WithModels(cfg.Models)}
	var generate []ai.GenerateOption
	if cfg.SummaryTemperature > 0 {
		generate = append(generate, ai.WithTemperature(cfg.SummaryTemperature))
	}
	if cfg.SummaryMaxTokens > 0 {
		generate = append(generate, ai.WithMaxOutputTokens(cfg.SummaryMaxTokens))
	}
	if len(generate) > 0 {
		opts = append(opts, summary.WithGenerateOptions(generate...))
	}
	if cfg.MaxAbstractTokens > 0 {
		truncator, err := summary.NewTiktokenTruncator("o200k_base")
		if err != nil {
			logger.Warn("Abstracts will not be truncated", "err", err)
		} else {
			opts = append(opts, summary.WithTruncator(truncator, cfg.MaxAbstractTokens))
		}
	}

	return &mid.App{
		Store:        instrumented,
		Builder:      builder,
		Reporter:     stats.NewReporter(instrumented, stats.WithParallelism(cfg.StatsParallelism)),
		Summary:      summary.NewService(builder, NewClientFactory(cfg.Providers), opts...),
		Limits:       cfg.Limits,
		MasterAPIKey: cfg.MasterAPIKey,
	}
}

// NewEcho builds the HTTP server for app.
func NewEcho(app *mid.App, cfg Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()

	e.Use(middleware.Recover())
	e.Use(mid.RequestID())
	e.Use(mid.RequestLogger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			routes.HeaderGenaiAPIKey,
		},
		ExposeHeaders: []string{echo.HeaderXRequestID},
	}))
	e.Use(mid.AppContextMiddleware(app))

	RegisterRoutes(e, cfg.RequestTimeout)
	return e
}

func Init() {
	cfg := LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open document store", "adapter", cfg.StoreAdapter, "err", err)
	}
	defer closeStore()

	err = util.RetryErrWithBackoff(ctx, cfg.StartupPingRetries, time.Second, func(ctx context.Context) error {
		err := s.Ping(ctx)
		if err != nil {
			logger.Warn("Document store not reachable yet", "adapter", cfg.StoreAdapter, "err", err)
		}
		return err
	})
	if err != nil {
		logger.Fatal("Failed to reach document store", "adapter", cfg.StoreAdapter, "err", err)
	}

	app := NewApp(cfg, s)

	if cfg.AuthURL != "" {
		jwksURL := cfg.AuthURL + "/jwks"
		k, err := util.RetryWithContext(ctx, 3, func(ctx context.Context) (keyfunc.Keyfunc, error) {
			return keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
		})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "url", jwksURL, "err", err)
		}
		app.Key = k.Keyfunc
	}
	if !app.AuthEnabled() {
		logger.Warn("Authentication is disabled, set AUTH_URL or MASTER_API_KEY to enable it")
	}

	e := NewEcho(app, cfg)

	go func() {
		logger.Info("Starting server", "port", cfg.Port, "store", cfg.StoreAdapter)
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
