package buildtrack

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// Socket event names, shared with the browser client.
const (
	EventJoinSite    = "joinSite"
	EventSendMessage = "sendMessage"
	EventChatHistory = "chatHistory"
	EventNewMessage  = "newMessage"
	EventError       = "error"
)

type socketEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinSitePayload struct {
	SiteID string `json:"siteId"`
}

type sendMessagePayload struct {
	SiteID  string             `json:"siteId"`
	Message chatMessagePayload `json:"message"`
}

type chatMessagePayload struct {
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	IsUser    bool      `json:"isUser"`
}

// SocketUpgrade gates the websocket route on a proper upgrade request.
func SocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// ChatSocketHandler serves the realtime chat protocol. Each connection joins
// one site room at a time; joining replays recent history, sends persist the
// message and then broadcast it to the room in persistence order.
func ChatSocketHandler(hub *ChatHub, repo RepositoryManager, logger Logger) fiber.Handler {
	if logger == nil {
		logger = defLogger{}
	}

	return websocket.New(func(conn *websocket.Conn) {
		client := hub.NewClient()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for payload := range client.Outbox() {
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					logger.Debug("chat socket write failed: %v", err)
					return
				}
			}
		}()

		defer func() {
			hub.Leave(client)
			<-done
			conn.Close()
		}()

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var env socketEnvelope
			if err := json.Unmarshal(raw, &env); err != nil {
				client.Send(mustEnvelope(EventError, fiber.Map{"message": "malformed frame"}))
				continue
			}

			switch env.Event {
			case EventJoinSite:
				handleJoinSite(client, hub, repo, logger, env.Data)
			case EventSendMessage:
				handleSendMessage(hub, repo, logger, client, env.Data)
			default:
				client.Send(mustEnvelope(EventError, fiber.Map{"message": "unknown event"}))
			}
		}
	})
}

func handleJoinSite(client *HubClient, hub *ChatHub, repo RepositoryManager, logger Logger, data json.RawMessage) {
	var payload joinSitePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.SiteID == "" {
		client.Send(mustEnvelope(EventError, fiber.Map{"message": "siteId is required"}))
		return
	}

	hub.Join(client, payload.SiteID)

	history, err := repo.ChatMessages().RecentBySite(context.Background(), payload.SiteID, ChatHistoryLimit)
	if err != nil {
		logger.Error("chat history load failed for site %s: %v", payload.SiteID, err)
		client.Send(mustEnvelope(EventError, fiber.Map{"message": "failed to load chat history"}))
		return
	}

	client.Send(mustEnvelope(EventChatHistory, history))
}

func handleSendMessage(hub *ChatHub, repo RepositoryManager, logger Logger, client *HubClient, data json.RawMessage) {
	var payload sendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.SiteID == "" {
		client.Send(mustEnvelope(EventError, fiber.Map{"message": "siteId and message are required"}))
		return
	}

	saved, err := repo.ChatMessages().Save(context.Background(), &ChatMessage{
		SiteID:    payload.SiteID,
		Sender:    payload.Message.Sender,
		Body:      payload.Message.Message,
		Timestamp: payload.Message.Timestamp,
		IsUser:    payload.Message.IsUser,
	})
	if err != nil {
		logger.Error("chat message save failed for site %s: %v", payload.SiteID, err)
		client.Send(mustEnvelope(EventError, fiber.Map{"message": "failed to save message"}))
		return
	}

	hub.Broadcast(payload.SiteID, mustEnvelope(EventNewMessage, saved))
}

func mustEnvelope(event string, data any) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = []byte("null")
	}
	out, _ := json.Marshal(socketEnvelope{Event: event, Data: raw})
	return out
}
