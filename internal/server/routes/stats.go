package routes

import (
	"net/http"

	"github.com/ndltd-tw/papergraph/internal/server/middleware"
	"github.com/ndltd-tw/papergraph/internal/server/util"

	"github.com/labstack/echo/v4"
)

const defaultYear = 109

type yearRequest struct {
	Year int `query:"year" validate:"min=1"`
}

func bindYear(c echo.Context) (int, error) {
	data := &yearRequest{Year: defaultYear}
	if err := util.BindAndValidate(c, data); err != nil {
		return 0, err
	}
	return data.Year, nil
}

// GetTopFieldCountsHandler returns the bucket counts of every aggregatable
// field for one graduation year.
func GetTopFieldCountsHandler(c echo.Context) error {
	year, err := bindYear(c)
	if err != nil {
		return util.WriteError(c, err)
	}

	app := c.(*middleware.AppContext).App
	counts, err := app.Reporter.TopFieldCounts(c.Request().Context(), year)
	if err != nil {
		return util.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, counts)
}

// GetInstitutionDepartmentHandler returns per institution and department
// counts for one graduation year.
func GetInstitutionDepartmentHandler(c echo.Context) error {
	year, err := bindYear(c)
	if err != nil {
		return util.WriteError(c, err)
	}

	app := c.(*middleware.AppContext).App
	rows, err := app.Reporter.InstitutionDepartmentStats(c.Request().Context(), year)
	if err != nil {
		return util.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, rows)
}

func GetTotalDocumentsHandler(c echo.Context) error {
	type totalResponse struct {
		Total int64 `json:"total"`
	}

	app := c.(*middleware.AppContext).App
	total, err := app.Reporter.TotalDocuments(c.Request().Context())
	if err != nil {
		return util.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, totalResponse{Total: total})
}
