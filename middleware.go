package buildtrack

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// ContextEmployeeKey is the fiber locals key holding the authenticated account.
const ContextEmployeeKey = "employee"

// EmployeeFromContext returns the account loaded by RequireAuth.
func EmployeeFromContext(c *fiber.Ctx) (*Employee, bool) {
	emp, ok := c.Locals(ContextEmployeeKey).(*Employee)
	return emp, ok
}

// RequireAuth verifies the bearer token, loads the account, and gates on a
// verified email. Expired and malformed tokens produce distinct bodies so
// clients know whether to prompt a re-login or discard a broken token.
func RequireAuth(tokens TokenService, repo RepositoryManager, logger Logger) fiber.Handler {
	if logger == nil {
		logger = defLogger{}
	}

	return func(c *fiber.Ctx) error {
		raw := bearerToken(c.Get(fiber.HeaderAuthorization))
		if raw == "" {
			return respondError(c, logger, ErrTokenMissing)
		}

		claims, err := tokens.Validate(raw)
		if err != nil {
			return respondError(c, logger, err)
		}

		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			return respondError(c, logger, ErrTokenMalformed)
		}

		emp, err := repo.Employees().GetWithSites(c.Context(), userID)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return respondError(c, logger, ErrTokenMalformed)
			}
			return respondError(c, logger, wrapInternal(err, "failed to load account"))
		}

		if !emp.IsEmailVerified {
			return respondError(c, logger, ErrEmailNotVerified)
		}

		c.Locals(ContextEmployeeKey, emp)
		return c.Next()
	}
}

// RequireAdmin gates a route on role admin/super_admin. Must run after
// RequireAuth.
func RequireAdmin(logger Logger) fiber.Handler {
	if logger == nil {
		logger = defLogger{}
	}

	return func(c *fiber.Ctx) error {
		emp, ok := EmployeeFromContext(c)
		if !ok {
			return respondError(c, logger, ErrTokenMissing)
		}

		if !emp.IsAdmin() {
			return respondError(c, logger, ErrAdminRequired)
		}

		return c.Next()
	}
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
