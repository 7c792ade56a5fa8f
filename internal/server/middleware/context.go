package middleware

import (
	"github.com/ndltd-tw/papergraph/pkg/graph"
	"github.com/ndltd-tw/papergraph/pkg/stats"
	"github.com/ndltd-tw/papergraph/pkg/store"
	"github.com/ndltd-tw/papergraph/pkg/summary"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const userKey = "user"

// AppUser is the authenticated caller of a request.
type AppUser struct {
	Subject string
	Role    string
}

// CurrentUser returns the caller set by AuthMiddleware, or nil when the
// request was not authenticated.
func CurrentUser(c echo.Context) *AppUser {
	u, _ := c.Get(userKey).(*AppUser)
	return u
}

func setUser(c echo.Context, u *AppUser) {
	c.Set(userKey, u)
}

// Limits caps the query parameters of the similarity routes. Zero leaves a
// parameter uncapped.
type Limits struct {
	MaxLayer    int
	MaxNResults int
	MaxRelatedK int
}

var DefaultLimits = Limits{MaxLayer: 5, MaxNResults: 50, MaxRelatedK: 100}

// App holds the long-lived dependencies shared by all requests.
//
// Key verifies bearer tokens. Authentication is disabled when both Key
// and MasterAPIKey are unset.
type App struct {
	Store        store.DocumentStore
	Builder      *graph.Builder
	Reporter     *stats.Reporter
	Summary      *summary.Service
	Limits       Limits
	Key          jwt.Keyfunc
	MasterAPIKey string
}

func (a *App) AuthEnabled() bool {
	return a.Key != nil || a.MasterAPIKey != ""
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
