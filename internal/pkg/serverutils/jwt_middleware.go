package serverutils

import (
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// JwtMiddleware rejects requests without a valid bearer token. Used on the
// dashboard and admin routes.
func JwtMiddleware(ctx *fiber.Ctx) error {
	claims, ok := parseBearer(ctx)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Missing or invalid token"})
	}

	setAuthLocals(ctx, claims)
	return ctx.Next()
}

// OptionalJwtMiddleware upgrades the request auth state when a valid token
// is present but lets anonymous requests through. The public chat widget
// never carries a token; the same endpoint serves logged-in owners.
func OptionalJwtMiddleware(ctx *fiber.Ctx) error {
	if claims, ok := parseBearer(ctx); ok {
		setAuthLocals(ctx, claims)
	}
	return ctx.Next()
}

func parseBearer(ctx *fiber.Ctx) (jwt.MapClaims, bool) {
	authHeader := ctx.Get("Authorization")
	if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
		return nil, false
	}
	tokenStr := authHeader[7:]

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(os.Getenv("JWT_SECRET")), nil
	})
	if err != nil || !token.Valid {
		return nil, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, false
	}
	return claims, true
}

func setAuthLocals(ctx *fiber.Ctx, claims jwt.MapClaims) {
	if userId, ok := claims["user_id"].(string); ok {
		ctx.Locals("user_id", userId)
	}
	if accountId, ok := claims["account_id"].(string); ok {
		ctx.Locals("account_id", accountId)
	}
	if role, ok := claims["role"].(string); ok {
		ctx.Locals("role", role)
	}
}
