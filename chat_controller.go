package buildtrack

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
)

// ChatController exposes the chat archive over REST alongside the socket.
type ChatController struct {
	Repo   RepositoryManager
	Hub    *ChatHub
	Logger Logger
}

func NewChatController(repo RepositoryManager, hub *ChatHub, logger Logger) *ChatController {
	if logger == nil {
		logger = defLogger{}
	}
	return &ChatController{Repo: repo, Hub: hub, Logger: logger}
}

// RegisterChatRoutes mounts the chat REST surface, normally under
// app.Group("/api/chat"). All routes require auth; deletion requires admin.
func RegisterChatRoutes(r fiber.Router, c *ChatController, authware, adminware fiber.Handler) {
	r.Get("/:siteId", authware, c.History)
	r.Post("/message", authware, c.PostMessage)
	r.Delete("/:siteId", authware, adminware, c.ClearSite)
}

// History returns the most recent messages for a site, oldest first.
func (cc *ChatController) History(c *fiber.Ctx) error {
	siteID := c.Params("siteId")
	if siteID == "" {
		return respondError(c, cc.Logger, ErrInvalidSiteReference)
	}

	history, err := cc.Repo.ChatMessages().RecentBySite(c.Context(), siteID, ChatHistoryLimit)
	if err != nil {
		return respondError(c, cc.Logger, wrapInternal(err, "failed to load chat history"))
	}

	return respond(c, fiber.StatusOK, "", fiber.Map{
		"messages": history,
		"count":    len(history),
	})
}

type PostMessageRequest struct {
	SiteID  string `json:"siteId"`
	Message string `json:"message"`
	IsUser  bool   `json:"isUser"`
}

func (r PostMessageRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SiteID, validation.Required),
		validation.Field(&r.Message, validation.Required, validation.Length(1, 4000)),
	)
}

// PostMessage persists a message through REST and pushes it to the live room,
// so HTTP-only clients still reach socket listeners.
func (cc *ChatController) PostMessage(c *fiber.Ctx) error {
	emp, ok := EmployeeFromContext(c)
	if !ok {
		return respondError(c, cc.Logger, ErrTokenMissing)
	}

	payload := new(PostMessageRequest)
	if err := parseAndValidate(c, payload); err != nil {
		return respondError(c, cc.Logger, err)
	}

	saved, err := cc.Repo.ChatMessages().Save(c.Context(), &ChatMessage{
		SiteID: payload.SiteID,
		Sender: emp.Name,
		Body:   payload.Message,
		IsUser: payload.IsUser,
	})
	if err != nil {
		return respondError(c, cc.Logger, wrapInternal(err, "failed to save message"))
	}

	if cc.Hub != nil {
		cc.Hub.Broadcast(payload.SiteID, mustEnvelope(EventNewMessage, saved))
	}

	return respond(c, fiber.StatusCreated, "message sent", fiber.Map{"chatMessage": saved})
}

// ClearSite bulk-deletes a site's archive. Live rooms are not notified; open
// clients keep their scrollback until the next history replay.
func (cc *ChatController) ClearSite(c *fiber.Ctx) error {
	siteID := c.Params("siteId")
	if siteID == "" {
		return respondError(c, cc.Logger, ErrInvalidSiteReference)
	}

	deleted, err := cc.Repo.ChatMessages().DeleteBySite(c.Context(), siteID)
	if err != nil {
		return respondError(c, cc.Logger, wrapInternal(err, "failed to clear chat history"))
	}

	return respond(c, fiber.StatusOK, "chat history cleared", fiber.Map{
		"deletedCount": deleted,
	})
}
