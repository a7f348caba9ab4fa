// Package server は HTTP ルーターの組み立てを行います。
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yourusername/pdf2img/internal/auth"
	"github.com/yourusername/pdf2img/internal/conversion"
	"github.com/yourusername/pdf2img/internal/logging"
)

// ServiceName はヘルスチェックで返すサービス名です。
const ServiceName = "pdf2img-api"

// healthPingTimeout は /health でストアの疎通を確認する時間の上限です。
const healthPingTimeout = 2 * time.Second

// Pinger は接続先の疎通を確認できるストアです。
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options はルーターの設定です。
type Options struct {
	Version            string
	Store              Pinger // nil なら /health は疎通確認をしない
	SecureCookies      bool
	CORSAllowedOrigins string // カンマ区切り
	MaxFileSize        int64
	Auth               auth.Credentials // 未設定なら認証なし
	Logger             zerolog.Logger
}

// NewRouter は変換 API のルーターを作成します。
func NewRouter(api conversion.API, opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logging.GinLogger(opts.Logger))
	router.Use(cors.New(corsConfig(opts.CORSAllowedOrigins)))

	router.GET("/health", healthHandler(opts.Version, opts.Store, opts.Logger))

	handlerOpts := conversion.HandlerOptions{
		MaxFileSize: opts.MaxFileSize,
		Logger:      opts.Logger,
	}

	if !opts.Auth.Enabled() {
		conversion.RegisterRoutes(router, api, handlerOpts)
		return router
	}

	authManager := auth.NewManager(opts.Auth, opts.Logger)
	router.Use(authManager.Sessions(opts.SecureCookies))

	authRoutes := router.Group("/auth")
	{
		// ログイン時はセッション未生成なので CSRF 検証は不要
		authRoutes.POST("/login", authManager.Login)
		authRoutes.POST("/logout",
			authManager.RequireLogin(),
			authManager.VerifyCSRF(),
			authManager.Logout,
		)
	}

	protected := router.Group("")
	protected.Use(authManager.RequireLogin(), authManager.VerifyCSRF())
	conversion.RegisterRoutes(protected, api, handlerOpts)
	return router
}

func healthHandler(version string, store Pinger, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
			err := store.Ping(ctx)
			cancel()
			if err != nil {
				logger.Warn().Err(err).Msg("health check: store ping failed")
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unavailable",
					"service": ServiceName,
					"version": version,
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": ServiceName,
			"version": version,
		})
	}
}

func corsConfig(allowedOrigins string) cors.Config {
	config := cors.DefaultConfig()
	var origins []string
	for _, origin := range strings.Split(allowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}
	config.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		auth.CSRFHeader,
	}
	// フロントエンドがレスポンスヘッダーから CSRF トークンを読み取れるように公開
	config.ExposeHeaders = []string{auth.CSRFHeader, "Content-Disposition"}
	return config
}
