package middleware

import (
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/proprep-api/internal/utils"
)

// Role returns the role claim bound by JWTProtected.
func Role(c *fiber.Ctx) string {
	if value, ok := c.Locals("user_role").(string); ok {
		return value
	}
	return ""
}

// RequireRole rejects requests whose token role is not in roles. Tokens
// without a role claim are rejected too.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		if normalized := normalizeRole(role); normalized != "" {
			if _, seen := allowed[normalized]; !seen {
				names = append(names, normalized)
			}
			allowed[normalized] = struct{}{}
		}
	}
	sort.Strings(names)

	return func(c *fiber.Ctx) error {
		role := normalizeRole(c.Locals("user_role"))
		if _, ok := allowed[role]; !ok {
			return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", fiber.Map{
				"required": strings.Join(names, ","),
			})
		}
		return c.Next()
	}
}
