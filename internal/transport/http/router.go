package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/usersvc/internal/handlers"
	mwauth "github.com/Skotchmaster/usersvc/internal/middleware/auth"
)

type Deps struct {
	AuthHandler   *handlers.AuthHandler
	UserHandler   *handlers.UserHandler
	HealthHandler *handlers.HealthHandler
	Guard         *mwauth.Guard
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", d.HealthHandler.Live)
	e.GET("/health/ready", d.HealthHandler.Ready)

	api := e.Group("/api")

	api.GET("/chat", handlers.Chat)

	api.POST("/login", d.AuthHandler.Login)
	api.POST("/refresh", d.AuthHandler.Refresh)
	api.POST("/logout", d.AuthHandler.Logout)

	user := api.Group("/user")

	user.POST("", d.UserHandler.Create)
	user.GET("/all", d.UserHandler.List)
	user.GET("/search", d.UserHandler.Search)
	user.GET("/me", d.UserHandler.Me, d.Guard.RequireAuth)
}
