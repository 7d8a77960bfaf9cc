// Package account implements the VPN account endpoints of the JSON API.
package account

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/GoVPN-Admin/GoVPN-Admin/internal/db/models"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/lifecycle"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/vpnconfig"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/web/handler"
)

// Path is the base path of the account endpoints.
const Path = "/api/vpn/account"

// Service is the account handler service.
type Service struct {
	db       *gorm.DB
	engine   *lifecycle.Engine
	renderer *vpnconfig.Renderer
	validate *validator.Validate
}

// Handler is the account handler.
var Handler = Service{}

// createRequest is the body of a create call.
type createRequest struct {
	ExpiresDays int `json:"expires_days" validate:"gte=0,lte=365"`
}

// renewRequest is the body of a renew call.
type renewRequest struct {
	ExtendsDays int `json:"extends_days" validate:"gte=1,lte=365"`
}

// Init initializes the account handler.
func (s *Service) Init(app *fiber.App, db *gorm.DB, engine *lifecycle.Engine, renderer *vpnconfig.Renderer) error {
	if app == nil || db == nil || engine == nil {
		return errors.New("app, db or engine is nil")
	}

	s.db = db
	s.engine = engine
	s.renderer = renderer
	s.validate = validator.New()

	app.Route(Path, func(router fiber.Router) {
		router.Post(handler.RootPath, s.Create)
		router.Get(handler.RootPath, s.Status)
		router.Post("/renew", s.Renew)
		router.Delete(handler.RootPath, s.Delete)
		router.Get("/config", s.DownloadConfig)
	})

	return nil
}

// identity resolves the authenticated identity from the request.
func (s *Service) identity(c *fiber.Ctx) (*models.Identity, error) {
	username := c.Get(handler.UserHeader)
	if username == "" {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "missing authenticated user")
	}

	var identity models.Identity
	if err := s.db.First(&identity, "username = ?", username).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "unknown user")
	}

	return &identity, nil
}

// reject answers a state-conflict rejection. Rejections are not errors: the
// request was understood and refused, and the caller should poll or retry
// later.
func reject(c *fiber.Ctx, message string) error {
	return c.JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}

// Create handles a VPN account creation request. The provisioning itself
// runs in the background; the response only confirms the request was queued.
func (s *Service) Create(c *fiber.Ctx) error {
	identity, err := s.identity(c)
	if err != nil {
		return err
	}

	var req createRequest
	if err = c.BodyParser(&req); err != nil && !errors.Is(err, fiber.ErrUnprocessableEntity) {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}

	if err = s.validate.Struct(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "expires_days must be between 0 and 365")
	}

	acc, err := s.engine.RequestCreate(identity.ID, req.ExpiresDays)

	switch {
	case errors.Is(err, lifecycle.ErrAlreadyCreating):
		return reject(c, "your account is being created, check back shortly")
	case errors.Is(err, lifecycle.ErrAlreadyProvisioned):
		return reject(c, "you already have a VPN account")
	case errors.Is(err, lifecycle.ErrIdentityInactive):
		return reject(c, "your identity is inactive")
	case err != nil:
		log.Error().Err(err).Str("username", identity.Username).Msg("account create request failed")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to request account creation")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "account creation requested, check back shortly",
		"task_id": acc.TaskID,
	})
}

// Status returns the current account state for status polling.
func (s *Service) Status(c *fiber.Ctx) error {
	identity, err := s.identity(c)
	if err != nil {
		return err
	}

	acc, err := s.engine.Get(identity.ID)
	if errors.Is(err, lifecycle.ErrNoAccount) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "no VPN account exists",
		})
	}

	if err != nil {
		log.Error().Err(err).Str("username", identity.Username).Msg("account status lookup failed")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load account")
	}

	payload := fiber.Map{
		"success":           true,
		"status":            acc.Status,
		"username":          acc.Username,
		"ip_addr":           acc.IPAddr,
		"is_usable":         acc.IsUsable(),
		"days_until_expiry": acc.DaysUntilExpiry(),
	}

	if acc.ExpiresAt != nil {
		payload["expires_at"] = acc.ExpiresAt
	}

	if acc.LastConnectTime != nil {
		payload["last_connect_time"] = acc.LastConnectTime
	}

	if acc.Status == models.StatusFailed {
		payload["error_message"] = acc.ErrorMessage
	}

	if acc.Status == models.StatusActive {
		password, errDecrypt := s.engine.PlainPassword(acc)
		if errDecrypt != nil {
			log.Error().Err(errDecrypt).Str("username", acc.Username).Msg("failed to decrypt account password")
		} else {
			payload["password"] = password
		}
	}

	return c.JSON(payload)
}

// Renew extends the account expiry.
func (s *Service) Renew(c *fiber.Ctx) error {
	identity, err := s.identity(c)
	if err != nil {
		return err
	}

	req := renewRequest{ExtendsDays: 30}
	if err = c.BodyParser(&req); err != nil && !errors.Is(err, fiber.ErrUnprocessableEntity) {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}

	if err = s.validate.Struct(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "extends_days must be between 1 and 365")
	}

	acc, err := s.engine.Renew(identity.ID, req.ExtendsDays)

	switch {
	case errors.Is(err, lifecycle.ErrNoAccount):
		return reject(c, "no VPN account exists")
	case errors.Is(err, lifecycle.ErrNotRenewable):
		return reject(c, "only active or expired accounts can be renewed")
	case err != nil:
		log.Error().Err(err).Str("username", identity.Username).Msg("account renew failed")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to renew account")
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"message":    "account renewed",
		"expires_at": acc.ExpiresAt,
	})
}

// Delete queues account deletion.
func (s *Service) Delete(c *fiber.Ctx) error {
	identity, err := s.identity(c)
	if err != nil {
		return err
	}

	outcome, err := s.engine.RequestDelete(identity.ID)

	switch {
	case errors.Is(err, lifecycle.ErrCreationInProgress):
		return reject(c, "account is being created and cannot be deleted yet, wait for it to finish or time out")
	case err != nil:
		log.Error().Err(err).Str("username", identity.Username).Msg("account delete request failed")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to request account deletion")
	}

	switch outcome {
	case lifecycle.DeleteAlreadyGone:
		return c.JSON(fiber.Map{
			"success": true,
			"message": "no account exists, nothing to delete",
		})
	case lifecycle.DeleteAlreadyInProgress:
		return reject(c, "account deletion is already in progress")
	default:
		return c.JSON(fiber.Map{
			"success": true,
			"message": "account deletion requested, check back shortly",
		})
	}
}

// DownloadConfig returns the OpenVPN client profile for a usable account.
func (s *Service) DownloadConfig(c *fiber.Ctx) error {
	identity, err := s.identity(c)
	if err != nil {
		return err
	}

	acc, err := s.engine.Get(identity.ID)
	if errors.Is(err, lifecycle.ErrNoAccount) {
		return fiber.NewError(fiber.StatusNotFound, "no VPN account exists")
	}

	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load account")
	}

	if !acc.IsUsable() {
		return fiber.NewError(fiber.StatusForbidden, "account is not usable or has expired")
	}

	password, err := s.engine.PlainPassword(acc)
	if err != nil {
		log.Error().Err(err).Str("username", acc.Username).Msg("failed to decrypt account password")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate client config")
	}

	profile, err := s.renderer.Render(acc.Username, password)
	if err != nil {
		log.Error().Err(err).Str("username", acc.Username).Msg("failed to render client config")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate client config")
	}

	c.Set(fiber.HeaderContentType, "application/x-openvpn-profile")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+vpnconfig.Filename(acc.Username)+`"`)

	return c.Send(profile)
}
