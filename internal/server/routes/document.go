package routes

import (
	"net/http"
	"strconv"

	"github.com/ndltd-tw/papergraph/internal/server/middleware"
	"github.com/ndltd-tw/papergraph/internal/server/util"
	"github.com/ndltd-tw/papergraph/pkg/common"
	"github.com/ndltd-tw/papergraph/pkg/graph"

	"github.com/labstack/echo/v4"
)

const (
	DefaultSeedUID  = "109THU00099005"
	defaultLayer    = 2
	defaultNResults = 5
	defaultRelatedK = 10
	titleSearchMax  = 10
)

// atMost rejects v above limit. A zero limit disables the check.
func atMost(subject string, v, limit int) error {
	if limit > 0 && v > limit {
		return common.NewValidationError("request", subject, "failed on max="+strconv.Itoa(limit))
	}
	return nil
}

// GetDocumentHandler returns a single document by uid.
func GetDocumentHandler(c echo.Context) error {
	type getDocumentRequest struct {
		UID string `query:"uid" validate:"required"`
	}

	data := new(getDocumentRequest)
	if err := util.BindAndValidate(c, data); err != nil {
		return util.WriteError(c, err)
	}

	app := c.(*middleware.AppContext).App
	doc, err := app.Store.FetchDocument(c.Request().Context(), data.UID)
	if err != nil {
		return util.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, doc)
}

// GetSimilarityNetworkHandler expands the similarity network around a seed.
func GetSimilarityNetworkHandler(c echo.Context) error {
	type similarityRequest struct {
		UID      string `query:"uid" validate:"required"`
		Layer    int    `query:"layer" validate:"min=0"`
		NResults int    `query:"n_results" validate:"min=1"`
	}

	data := &similarityRequest{
		UID:      DefaultSeedUID,
		Layer:    defaultLayer,
		NResults: defaultNResults,
	}
	if err := util.BindAndValidate(c, data); err != nil {
		return util.WriteError(c, err)
	}

	app := c.(*middleware.AppContext).App
	if err := atMost("layer", data.Layer, app.Limits.MaxLayer); err != nil {
		return util.WriteError(c, err)
	}
	if err := atMost("n_results", data.NResults, app.Limits.MaxNResults); err != nil {
		return util.WriteError(c, err)
	}
	network, err := app.Builder.Build(c.Request().Context(), data.UID, data.Layer, data.NResults)
	if err != nil {
		return util.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, network)
}

// GetRelatedDocumentsHandler returns the nearest neighbours of one document,
// optionally restricted to a field of study.
func GetRelatedDocumentsHandler(c echo.Context) error {
	type relatedRequest struct {
		UID           string `query:"uid" validate:"required"`
		K             int    `query:"k" validate:"min=1"`
		NarrowField   string `query:"narrow_field"`
		DetailedField string `query:"detailed_field"`
		RoundDecimal  int    `query:"round_decimal" validate:"min=1,max=7"`
	}

	type relatedResponse struct {
		UID        string                   `json:"uid"`
		Candidates []common.ScoredCandidate `json:"candidates"`
	}

	data := &relatedRequest{
		K:            defaultRelatedK,
		RoundDecimal: common.DefaultRoundDecimal,
	}
	if err := util.BindAndValidate(c, data); err != nil {
		return util.WriteError(c, err)
	}

	app := c.(*middleware.AppContext).App
	if err := atMost("k", data.K, app.Limits.MaxRelatedK); err != nil {
		return util.WriteError(c, err)
	}
	candidates, err := app.Builder.Related(c.Request().Context(), data.UID, graph.RelatedQuery{
		K:             data.K,
		NarrowField:   data.NarrowField,
		DetailedField: data.DetailedField,
		RoundDecimal:  data.RoundDecimal,
	})
	if err != nil {
		return util.WriteError(c, err)
	}
	if candidates == nil {
		candidates = []common.ScoredCandidate{}
	}
	return c.JSON(http.StatusOK, relatedResponse{UID: data.UID, Candidates: candidates})
}

// SearchTitleHandler runs a full text title search.
func SearchTitleHandler(c echo.Context) error {
	type searchTitleRequest struct {
		Query string `query:"query" validate:"required"`
	}

	data := new(searchTitleRequest)
	if err := util.BindAndValidate(c, data); err != nil {
		return util.WriteError(c, err)
	}

	app := c.(*middleware.AppContext).App
	docs, err := app.Store.FullTextSearch(c.Request().Context(), data.Query, titleSearchMax)
	if err != nil {
		return util.WriteError(c, err)
	}
	if docs == nil {
		docs = []common.Document{}
	}
	return c.JSON(http.StatusOK, docs)
}
