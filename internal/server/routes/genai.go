package routes

import (
	"github.com/ndltd-tw/papergraph/internal/server/middleware"
	"github.com/ndltd-tw/papergraph/internal/server/util"
	"github.com/ndltd-tw/papergraph/pkg/ai"
	"github.com/ndltd-tw/papergraph/pkg/logger"
	"github.com/ndltd-tw/papergraph/pkg/summary"

	"github.com/labstack/echo/v4"
)

// HeaderGenaiAPIKey carries a caller supplied provider key.
const HeaderGenaiAPIKey = "Genai-Api-Key"

// GetSummaryHandler streams a comparison of a document with its nearest
// neighbours as newline delimited JSON.
func GetSummaryHandler(c echo.Context) error {
	type summaryRequest struct {
		LLMService string `query:"llm_service" validate:"required"`
		ModelName  string `query:"model_name"`
		TargetUID  string `query:"target_uid" validate:"required"`
		NResults   int    `query:"n_results" validate:"min=1"`
	}

	data := &summaryRequest{
		LLMService: ai.ProviderGoogle.String(),
		TargetUID:  DefaultSeedUID,
		NResults:   summary.DefaultNResults,
	}
	if err := util.BindAndValidate(c, data); err != nil {
		return util.WriteError(c, err)
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	if err := atMost("n_results", data.NResults, app.Limits.MaxNResults); err != nil {
		return util.WriteError(c, err)
	}

	stream, err := app.Summary.Stream(ctx, summary.Request{
		Provider:  data.LLMService,
		Model:     data.ModelName,
		APIKey:    c.Request().Header.Get(HeaderGenaiAPIKey),
		TargetUID: data.TargetUID,
		NResults:  data.NResults,
	})
	if err != nil {
		return util.WriteError(c, err)
	}

	w := util.NewStreamWriter(c)
	for ev := range stream.Events {
		if ev.Type == ai.EventError {
			logger.Error("Summary stream failed", "provider", stream.Provider, "model", stream.Model, "err", ev.Err)
			// keep draining so the producer can exit
			for range stream.Events {
			}
			return w.Error(ev.Err)
		}
		if ev.Content == "" {
			continue
		}
		if err := w.Content(ev.Content); err != nil {
			for range stream.Events {
			}
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil
	}

	return w.Done(stream.Client.GetMetrics())
}
