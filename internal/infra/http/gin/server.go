package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"github.com/sthaarwin/Dental-Smile-sub001/internal/infra/config"
	"github.com/sthaarwin/Dental-Smile-sub001/internal/infra/obs"
)

type ChatHTTP interface {
	CreateConversation(c *gin.Context)
	ListConversations(c *gin.Context)
	ListMessages(c *gin.Context)
	UnreadCount(c *gin.Context)
	DeleteConversation(c *gin.Context)
}

type Handlers struct {
	Chat           ChatHTTP
	Gateway        http.Handler
	AuthMiddleware gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	if h.Gateway != nil {
		router.GET("/ws", gin.WrapH(h.Gateway))
	}

	api := router.Group("/api/v1")
	if h.AuthMiddleware != nil {
		api.Use(h.AuthMiddleware)
	}
	if h.Chat != nil {
		chatGroup := api.Group("/chat")
		chatGroup.POST("/conversation", h.Chat.CreateConversation)
		chatGroup.GET("/conversations", h.Chat.ListConversations)
		chatGroup.GET("/conversations/:id/messages", h.Chat.ListMessages)
		chatGroup.GET("/unread-count", h.Chat.UnreadCount)
		chatGroup.DELETE("/conversations/:id", h.Chat.DeleteConversation)
	}

	return &http.Server{Addr: cfg.HTTPAddr, Handler: router}
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
