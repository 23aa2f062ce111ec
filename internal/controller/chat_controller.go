package controller

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"audience-engine-be/internal/dto"
	"audience-engine-be/internal/metrics"
	"audience-engine-be/internal/pkg/serverutils"
	"audience-engine-be/internal/service"
	"audience-engine-be/pkg/engine/pipeline"
	"audience-engine-be/pkg/engine/policy"

	"github.com/gofiber/fiber/v2"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	SendMessage(ctx *fiber.Ctx) error
	SendAction(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService service.IChatService
}

func NewChatController(chatService service.IChatService) IChatController {
	return &chatController{
		chatService: chatService,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Use(serverutils.OptionalJwtMiddleware) // public widget posts without a token
	h.Post("message", c.SendMessage)
	h.Post("action", c.SendAction)
}

func (c *chatController) SendMessage(ctx *fiber.Ctx) error {
	var req dto.ChatMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	req.IPHash = hashIP(ctx.IP())
	req.UserAgent = ctx.Get("User-Agent")

	res, err := c.chatService.SendMessage(ctx.Context(), &req, securityFromLocals(ctx, &req))
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrLockContention):
			metrics.LockContention.Inc()
			ctx.Set("Retry-After", "2")
			return ctx.Status(fiber.StatusTooManyRequests).
				JSON(serverutils.ErrorResponse(429, "Session is busy, retry shortly"))
		case errors.Is(err, pipeline.ErrSessionConflict):
			return ctx.Status(fiber.StatusConflict).
				JSON(serverutils.ErrorResponse(409, "Session was modified concurrently, retry"))
		default:
			metrics.MessagesProcessed.WithLabelValues("error").Inc()
			return ctx.Status(fiber.StatusInternalServerError).
				JSON(serverutils.ErrorResponse(500, "Failed to process message"))
		}
	}

	switch {
	case res.Cached:
		metrics.MessagesProcessed.WithLabelValues("replayed").Inc()
	case res.Blocked:
		metrics.MessagesProcessed.WithLabelValues("blocked").Inc()
	default:
		metrics.MessagesProcessed.WithLabelValues("completed").Inc()
	}

	return ctx.JSON(serverutils.SuccessResponse("Message processed", res))
}

func (c *chatController) SendAction(ctx *fiber.Ctx) error {
	var req dto.ChatActionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.SendAction(ctx.Context(), &req)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).
			JSON(serverutils.ErrorResponse(500, "Failed to record action"))
	}
	if !res.Accepted {
		return ctx.Status(fiber.StatusTooManyRequests).JSON(serverutils.SuccessResponse("Action rejected", res))
	}
	return ctx.JSON(serverutils.SuccessResponse("Action recorded", res))
}

// securityFromLocals upgrades the request auth state when JWT middleware
// verified a token. Anonymous requests return nil and the pipeline derives
// the default context from the source channel.
func securityFromLocals(ctx *fiber.Ctx, req *dto.ChatMessageRequest) *policy.SecurityContext {
	accountId, _ := ctx.Locals("account_id").(string)
	if accountId == "" {
		return nil
	}

	role, _ := ctx.Locals("role").(string)
	userId, _ := ctx.Locals("user_id").(string)

	channel := "public_chat"
	if req.Source == "dashboard" {
		channel = "dashboard"
	}

	return &policy.SecurityContext{
		Channel: channel,
		Auth: policy.AuthContext{
			IsAuthenticated: true,
			IsOwner:         accountId == req.AccountId,
			UserId:          userId,
			Role:            role,
		},
		IPHash:    req.IPHash,
		UserAgent: req.UserAgent,
		Consents: policy.Consents{
			AllowEscalationToHuman: true,
			AllowWhatsapp:          true,
			AllowEmail:             false,
		},
	}
}

func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])[:16]
}
