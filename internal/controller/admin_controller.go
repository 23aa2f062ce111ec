package controller

import (
	"audience-engine-be/internal/pkg/serverutils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RuleCacheInvalidator drops an account's cached rule layer.
type RuleCacheInvalidator interface {
	Invalidate(accountId string)
}

// AccountCacheInvalidator drops an account's cached context snapshot.
type AccountCacheInvalidator interface {
	InvalidateAccount(accountId uuid.UUID)
}

type IAdminController interface {
	RegisterRoutes(r fiber.Router)
	RefreshAccountCaches(ctx *fiber.Ctx) error
}

type adminController struct {
	rules    RuleCacheInvalidator
	accounts AccountCacheInvalidator
}

func NewAdminController(rules RuleCacheInvalidator, accounts AccountCacheInvalidator) IAdminController {
	return &adminController{
		rules:    rules,
		accounts: accounts,
	}
}

func (c *adminController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/admin/v1")
	h.Use(serverutils.JwtMiddleware) // dashboard routes require a verified token
	h.Post("accounts/:accountId/cache/refresh", c.RefreshAccountCaches)
}

// RefreshAccountCaches drops the cached rules and account context after the
// owner publishes changes, so the next message sees them without waiting out
// the TTL.
func (c *adminController) RefreshAccountCaches(ctx *fiber.Ctx) error {
	accountId := ctx.Params("accountId")
	parsed, err := uuid.Parse(accountId)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid account id"))
	}

	tokenAccount, _ := ctx.Locals("account_id").(string)
	role, _ := ctx.Locals("role").(string)
	if tokenAccount != accountId && role != "admin" {
		return ctx.Status(fiber.StatusForbidden).JSON(serverutils.ErrorResponse(403, "Account mismatch"))
	}

	c.rules.Invalidate(accountId)
	c.accounts.InvalidateAccount(parsed)
	return ctx.JSON(serverutils.SuccessResponse("Caches refreshed", fiber.Map{"accountId": accountId}))
}
