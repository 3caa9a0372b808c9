package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func Chat(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"chat": "This is a chat"})
}
