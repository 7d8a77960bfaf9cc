package handler

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/GoVPN-Admin/GoVPN-Admin/internal/lifecycle"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/vpnconfig"
)

// Service is the interface for a web handler service.
type Service interface {
	Init(app *fiber.App, db *gorm.DB, engine *lifecycle.Engine, renderer *vpnconfig.Renderer) error
}
