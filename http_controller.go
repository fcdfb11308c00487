package buildtrack

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// AuthController exposes the account lifecycle over JSON REST.
type AuthController struct {
	Accounts *Accounts
	Logger   Logger
}

func NewAuthController(accounts *Accounts, logger Logger) *AuthController {
	if logger == nil {
		logger = defLogger{}
	}
	return &AuthController{Accounts: accounts, Logger: logger}
}

// RegisterAuthRoutes mounts the auth surface under the given router, normally
// app.Group("/api/auth"). The admin routes stack RequireAdmin on top of auth.
func RegisterAuthRoutes(r fiber.Router, c *AuthController, authware, adminware fiber.Handler) {
	r.Post("/register", c.Register)
	r.Post("/verify-email", c.VerifyEmail)
	r.Post("/resend-otp", c.ResendOTP)
	r.Post("/login", c.Login)
	r.Post("/forgot-password", c.ForgotPassword)
	r.Post("/resend-forgot-password-otp", c.ResendForgotPasswordOTP)
	r.Post("/reset-password", c.ResetPassword)

	r.Get("/me", authware, c.Me)
	r.Post("/logout", authware, c.Logout)
	r.Post("/change-password", authware, c.ChangePassword)

	r.Get("/pending-users", authware, adminware, c.PendingUsers)
	r.Post("/verify-user", authware, adminware, c.VerifyUser)
	r.Post("/assign-sites", authware, adminware, c.AssignSites)
	r.Get("/all-sites", authware, adminware, c.AllSites)
}

type RegisterRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	CompanyCode     string `json:"companyCode"`
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Phone, validation.Required, validation.Length(7, 15)),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) Register(c *fiber.Ctx) error {
	payload := new(RegisterRequest)
	if err := parseAndValidate(c, payload); err != nil {
		return respondError(c, a.Logger, err)
	}

	result, err := a.Accounts.Register(c.Context(), RegisterInput{
		Name:        payload.Name,
		Email:       payload.Email,
		Phone:       payload.Phone,
		Password:    payload.Password,
		CompanyCode: payload.CompanyCode,
	})
	if err != nil {
		return respondError(c, a.Logger, err)
	}

	return respond(c, fiber.StatusCreated,
		"registration successful, please check your email for the verification code",
		fiber.Map{"user": result})
}

type VerifyEmailRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

func (r VerifyEmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.OTP, validation.Required, validation.Length(6, 6), is.Digit),
	)
}

func (a *AuthController) VerifyEmail(c *fiber.Ctx) error {
	payload := new(VerifyEmailRequest)
	if err := parseAndValidate(c, payload); err != nil {
		return respondError(c, a.Logger, err)
	}

	result, err := a.Accounts.VerifyEmail(c.Context(), payload.Email, payload.OTP)
	if err != nil {
		return respondError(c, a.Logger, err)
	}

	return respond(c, fiber.StatusOK, "email verified successfully", fiber.Map{
		"token": result.Token,
		"user":  result.User,
	})
}

type EmailRequest struct {
	Email string `json:"email"`
}

func (r EmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *AuthController) ResendOTP(c *fiber.Ctx) error {
	payload := new(EmailRequest)
	if err := parseAndValidate(c, payload); err != nil {
		return respondError(c, a.Logger, err)
	}

	if err := a.Accounts.ResendOTP(c.Context(), payload.Email); err != nil {
		return respondError(c, a.Logger, err)
	}

	return respond(c, fiber.StatusOK, "verification code sent to your email", nil)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) Login(c *fiber.Ctx) error {
	payload := new(LoginRequest)
	if err := parseAndValidate(c, payload); err != nil {
		return respondError(c, a.Logger, err)
	}

	result, err := a.Accounts.Login(c.Context(), payload.Email, payload.Password)
	if err != nil {
		return respondError(c, a.Logger, err)
	}

	return respond(c, fiber.StatusOK, "login successful", fiber.Map{
		"token": result.Token,
		"user":  result.User,
	})
}

func (a *AuthController) ForgotPassword(c *fiber.Ctx) error {
	payload := new(EmailRequest)
	if err := parseAndValidate(c, payload); err != nil {
		return respondError(c, a.Logger, err)
	}

	if err := a.Accounts.ForgotPassword(c.Context(), payload.Email); err != nil {
		return respondError(c, a.Logger, err)
	}

	return respond(c, fiber.StatusOK, "password reset code sent to your email", nil)
}

func (a *AuthController) ResendForgotPasswordOTP(c *fiber.Ctx) error {
	payload := new(EmailRequest)
	if err := parseAndValidate(c, payload); err != nil {
		return respondError(c, a.Logger, err)
	}

	if err := a.Accounts.ResendForgotPasswordOTP(c.Context(), payload.Email); err != nil {
		return respondError(c, a.Logger, err)
	}

	return respond(c, fiber.StatusOK, "password reset code sent to your email", nil)
}

type ResetPasswordRequest struct {
	Email           string `json:"email"`
	OTP             string `json:"otp"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.OTP, validation.Required, validation.Length(6, 6), is.Digit),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(6, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.NewPassword)),
		),
	)
}

func (a *AuthController) ResetPassword(c *fiber.Ctx) error {
	payload := new(ResetPasswordRequest)
	if err := parseAndValidate(c, payload); err != nil {
		return respondError(c, a.Logger, err)
	}

	if err := a.Accounts.ResetPassword(c.Context(), payload.Email, payload.OTP, payload.NewPassword); err != nil {
		return respondError(c, a.Logger, err)
	}

	return respond(c, fiber.StatusOK, "password reset successful, you can now log in", nil)
}

func (a *AuthController) Me(c *fiber.Ctx) error {
	emp, ok := EmployeeFromContext(c)
	if !ok {
		return respondError(c, a.Logger, ErrTokenMissing)
	}

	return respond(c, fiber.StatusOK, "", fiber.Map{
		"user":   emp,
		"status": emp.Status(time.Now()),
	})
}

// Logout is a client-side token disposal acknowledgement. Tokens are
// stateless, nothing is revoked server-side.
func (a *AuthController) Logout(c *fiber.Ctx) error {
	return respond(c, fiber.StatusOK, "logged out successfully", nil)
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (r ChangePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(6, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.NewPassword)),
		),
	)
}

func (a *AuthController) ChangePassword(c *fiber.Ctx) error {
	emp, ok := EmployeeFromContext(c)
	if !ok {
		return respondError(c, a.Logger, ErrTokenMissing)
	}

	payload := new(ChangePasswordRequest)
	if err := parseAndValidate(c, payload); err != nil {
		return respondError(c, a.Logger, err)
	}

	if err := a.Accounts.ChangePassword(c.Context(), emp.ID, payload.CurrentPassword, payload.NewPassword); err != nil {
		return respondError(c, a.Logger, err)
	}

	return respond(c, fiber.StatusOK, "password changed successfully", nil)
}

func (a *AuthController) PendingUsers(c *fiber.Ctx) error {
	emp, ok := EmployeeFromContext(c)
	if !ok {
		return respondError(c, a.Logger, ErrTokenMissing)
	}

	pending, err := a.Accounts.PendingUsers(c.Context(), emp.ID)
	if err != nil {
		return respondError(c, a.Logger, err)
	}

	return respond(c, fiber.StatusOK, "", fiber.Map{
		"users": pending,
		"count": len(pending),
	})
}

type VerifyUserRequest struct {
	UserID        string   `json:"userId"`
	AssignedSites []string `json:"assignedSites"`
}

func (r VerifyUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required, is.UUIDv4),
	)
}

func (a *AuthController) VerifyUser(c *fiber.Ctx) error {
	emp, ok := EmployeeFromContext(c)
	if !ok {
		return respondError(c, a.Logger, ErrTokenMissing)
	}

	payload := new(VerifyUserRequest)
	if err := parseAndValidate(c, payload); err != nil {
		return respondError(c, a.Logger, err)
	}

	targetID, siteIDs, err := parseUserAndSites(payload.UserID, payload.AssignedSites)
	if err != nil {
		return respondError(c, a.Logger, err)
	}

	verified, err := a.Accounts.VerifyUser(c.Context(), emp.ID, targetID, siteIDs)
	if err != nil {
		return respondError(c, a.Logger, err)
	}

	return respond(c, fiber.StatusOK, "user verified successfully", fiber.Map{"user": verified})
}

type AssignSitesRequest struct {
	UserID  string   `json:"userId"`
	SiteIDs []string `json:"siteIds"`
}

func (r AssignSitesRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required, is.UUIDv4),
	)
}

func (a *AuthController) AssignSites(c *fiber.Ctx) error {
	emp, ok := EmployeeFromContext(c)
	if !ok {
		return respondError(c, a.Logger, ErrTokenMissing)
	}

	payload := new(AssignSitesRequest)
	if err := parseAndValidate(c, payload); err != nil {
		return respondError(c, a.Logger, err)
	}

	targetID, siteIDs, err := parseUserAndSites(payload.UserID, payload.SiteIDs)
	if err != nil {
		return respondError(c, a.Logger, err)
	}

	updated, err := a.Accounts.AssignSites(c.Context(), emp.ID, targetID, siteIDs)
	if err != nil {
		return respondError(c, a.Logger, err)
	}

	return respond(c, fiber.StatusOK, "sites assigned successfully", fiber.Map{"user": updated})
}

func (a *AuthController) AllSites(c *fiber.Ctx) error {
	emp, ok := EmployeeFromContext(c)
	if !ok {
		return respondError(c, a.Logger, ErrTokenMissing)
	}

	sites, err := a.Accounts.AllSites(c.Context(), emp.ID)
	if err != nil {
		return respondError(c, a.Logger, err)
	}

	return respond(c, fiber.StatusOK, "", fiber.Map{
		"sites": sites,
		"count": len(sites),
	})
}

func parseUserAndSites(rawUser string, rawSites []string) (uuid.UUID, []uuid.UUID, error) {
	targetID, err := uuid.Parse(rawUser)
	if err != nil {
		return uuid.Nil, nil, goerrors.New("invalid user id", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	siteIDs := make([]uuid.UUID, 0, len(rawSites))
	for _, raw := range rawSites {
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, nil, ErrInvalidSiteReference
		}
		siteIDs = append(siteIDs, id)
	}

	return targetID, siteIDs, nil
}

// ValidateStringEquals builds an ozzo rule asserting equality with another
// field, used for password confirmation.
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("fields do not match")
		}
		return nil
	}
}
