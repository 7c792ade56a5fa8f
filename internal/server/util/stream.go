package util

import (
	"encoding/json"
	"net/http"

	"github.com/ndltd-tw/papergraph/pkg/ai"

	"github.com/labstack/echo/v4"
)

// MIMEApplicationNDJSON is the content type of streamed responses.
const MIMEApplicationNDJSON = "application/x-ndjson"

// StreamLine is one line of a streamed response. Exactly one of Content,
// Done or Error is set.
type StreamLine struct {
	Content string           `json:"content,omitempty"`
	Done    bool             `json:"done,omitempty"`
	Metrics *ai.ModelMetrics `json:"metrics,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// StreamWriter writes newline delimited JSON and flushes after every line.
type StreamWriter struct {
	c       echo.Context
	enc     *json.Encoder
	started bool
}

func NewStreamWriter(c echo.Context) *StreamWriter {
	return &StreamWriter{c: c, enc: json.NewEncoder(c.Response())}
}

func (w *StreamWriter) write(line StreamLine) error {
	if !w.started {
		w.c.Response().Header().Set(echo.HeaderContentType, MIMEApplicationNDJSON)
		w.c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		w.c.Response().WriteHeader(http.StatusOK)
		w.started = true
	}
	if err := w.enc.Encode(line); err != nil {
		return err
	}
	w.c.Response().Flush()
	return nil
}

func (w *StreamWriter) Content(text string) error {
	return w.write(StreamLine{Content: text})
}

func (w *StreamWriter) Done(metrics ai.ModelMetrics) error {
	return w.write(StreamLine{Done: true, Metrics: &metrics})
}

func (w *StreamWriter) Error(err error) error {
	return w.write(StreamLine{Error: err.Error()})
}
