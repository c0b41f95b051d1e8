package handlers

import (
	"context"
	"net/http"
	"time"

	"pairchat/internal/config"
	"pairchat/internal/middleware"
	"pairchat/internal/models"
	"pairchat/internal/services"
	"pairchat/internal/session"
	"pairchat/internal/store"
	"pairchat/internal/utils"
	ws "pairchat/internal/websocket"
	"pairchat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// ChatHandler upgrades authenticated connections and wires each one to a
// session controller.
type ChatHandler struct {
	hub      *ws.Hub
	store    store.Store
	presence *services.PresenceService
	cfg      *config.Config
	upgrader websocket.Upgrader
}

func NewChatHandler(hub *ws.Hub, st store.Store, presence *services.PresenceService, cfg *config.Config) *ChatHandler {
	return &ChatHandler{
		hub:      hub,
		store:    st,
		presence: presence,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.Server.WebSocket.ReadBufferSize,
			WriteBufferSize: cfg.Server.WebSocket.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				if !cfg.Server.WebSocket.CheckOrigin {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, allowed := range cfg.Server.CORS.AllowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}
}

// Connect handles GET /api/v1/ws. SessionAuth has already validated the
// token; the uid and profile fields come from its claims.
func (h *ChatHandler) Connect(c *gin.Context) {
	uid := middleware.GetUserID(c)
	if uid == "" {
		utils.ErrorResponseWithCode(c, http.StatusUnauthorized, utils.CodeUnauthorized, "Missing session")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.LogError(err, "WebSocket upgrade failed", map[string]interface{}{
			"uid": uid,
			"ip":  c.ClientIP(),
		})
		return
	}

	self := models.User{
		UID:  uid,
		Name: c.GetString("user_name"),
	}

	client := ws.NewClient(conn, h.hub, uid, h.cfg.Server.WebSocket)
	controller := session.NewController(h.store, self, client, session.Config{
		TypingDebounce: h.cfg.Chat.TypingDebounce,
		MaxMessageLen:  h.cfg.Chat.MaxMessageLen,
	})
	client.Bind(controller)

	h.hub.Register <- client

	// Redis heartbeat runs for the life of the connection when enabled.
	var stopHeartbeat context.CancelFunc
	if h.presence != nil {
		var hbCtx context.Context
		hbCtx, stopHeartbeat = context.WithCancel(context.Background())
		go h.presence.RunHeartbeat(hbCtx, uid)
	}

	go client.WritePump()
	go func() {
		defer func() {
			if stopHeartbeat != nil {
				stopHeartbeat()
			}
		}()
		startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		controller.Start(startCtx)
		cancel()
		client.ReadPump()
	}()
}

// Presence handles GET /api/v1/presence/:uid. A live connection on this
// instance is definitive; otherwise the Redis heartbeat decides when
// available, falling back to the users collection.
func (h *ChatHandler) Presence(c *gin.Context) {
	uid := c.Param("uid")

	if h.hub.IsUserConnected(uid) {
		utils.SuccessResponse(c, gin.H{"uid": uid, "online": true})
		return
	}

	if h.presence != nil {
		online, err := h.presence.IsOnline(c.Request.Context(), uid)
		if err == nil {
			utils.SuccessResponse(c, gin.H{"uid": uid, "online": online})
			return
		}
		logger.WithError(err).Warn("Presence lookup fell back to store")
	}

	doc, err := h.store.GetDocument(c.Request.Context(), "users/"+uid)
	if err != nil {
		utils.SuccessResponse(c, gin.H{"uid": uid, "online": false})
		return
	}
	utils.SuccessResponse(c, gin.H{"uid": uid, "online": doc.Bool("online")})
}

// Stats handles GET /api/v1/stats for operational visibility
func (h *ChatHandler) Stats(c *gin.Context) {
	utils.SuccessResponse(c, h.hub.Stats())
}
