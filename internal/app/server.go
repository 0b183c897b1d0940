package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"conveyor/internal/handlers"
	"conveyor/internal/ratelimit"
	"conveyor/internal/server"
)

// RunServer builds the HTTP handler tree and returns a server ready to
// start on the configured port.
func (app *App) RunServer() (*server.Server, http.Handler) {
	h := handlers.New(
		app.Config,
		app.Storage,
		app.Engine,
		app.Router,
		app.Artifacts,
		app.Trigger,
		app.Logger,
	)

	router := mux.NewRouter()
	SetupRoutes(router, h, app.Auth.Middleware, ratelimit.New(ratelimit.DefaultConfig()))

	return server.New(router, app.Config.Port, app.Config.MaxRunDuration), router
}
