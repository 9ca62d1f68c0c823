package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"sneakmarket/internal/infra/config"
	"sneakmarket/internal/infra/obs"
)

type ListingHTTP interface {
	List(c *gin.Context)
	Get(c *gin.Context)
}

type Handlers struct {
	Chat           ChatHTTP
	Listing        ListingHTTP
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
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))
	if h.AuthMiddleware != nil {
		router.Use(h.AuthMiddleware)
	}

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api/v1")
	if h.Chat != nil {
		api.GET("/conversations", h.Chat.ListMyConversations)
		api.GET("/conversations/stream", h.Chat.StreamMyConversations)
		api.POST("/conversations", h.Chat.CreateConversation)
		api.GET("/conversations/:id", h.Chat.GetConversation)
		api.POST("/conversations/:id/read", h.Chat.MarkRead)
		api.GET("/conversations/:id/messages", h.Chat.ListMessages)
		api.GET("/conversations/:id/messages/stream", h.Chat.StreamMessages)
		api.POST("/conversations/:id/messages", h.Chat.SendMessage)
		api.POST("/conversations/:id/offers", h.Chat.SendOffer)
		api.POST("/conversations/:id/trades", h.Chat.SendTrade)
		api.POST("/conversations/:id/messages/:messageID/respond", h.Chat.Respond)
		api.POST("/conversations/:id/attachments", h.Chat.UploadAttachment)
	}
	if h.Listing != nil {
		api.GET("/listings", h.Listing.List)
		api.GET("/listings/:id", h.Listing.Get)
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
