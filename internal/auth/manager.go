// Package auth は API のセッション認証と CSRF 保護を提供します。
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	SessionCookieName    = "p2i_session"
	sessionKeyUser       = "auth_user"
	sessionKeyIssuedAt   = "issued_at"
	sessionKeyLastActive = "last_activity"
	sessionKeyCSRF       = "csrf_token"

	// CSRFHeader はログイン時に発行したトークンを送り返すヘッダーです。
	CSRFHeader = "X-CSRF-Token"
)

var (
	maxSessionLifetime = 12 * time.Hour
	idleTimeout        = 30 * time.Minute
)

// ContextUserKey は、ハンドラー間でログイン済みユーザー名を共有するためのキーです。
const ContextUserKey = "auth.user"

// Credentials はログインに使う認証情報です。
type Credentials struct {
	Username      string
	PasswordHash  string // bcrypt ハッシュ
	SessionSecret string
}

// Enabled は認証情報が揃っているかを返します。
func (c Credentials) Enabled() bool {
	return c.Username != "" && c.PasswordHash != "" && c.SessionSecret != ""
}

// Manager は認証処理と状態をまとめた構造体です。
type Manager struct {
	creds   Credentials
	limiter *loginLimiter
	logger  zerolog.Logger
	now     func() time.Time
}

// NewManager は認証マネージャーを作成します。
func NewManager(creds Credentials, logger zerolog.Logger) *Manager {
	return &Manager{
		creds:   creds,
		limiter: newLoginLimiter(time.Now),
		logger:  logger.With().Str("component", "auth").Logger(),
		now:     time.Now,
	}
}

// Sessions は署名付きクッキーのセッションミドルウェアを返します。
func (m *Manager) Sessions(secure bool) gin.HandlerFunc {
	store := cookie.NewStore([]byte(m.creds.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
	return sessions.Sessions(SessionCookieName, store)
}

// SessionMaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func SessionMaxAgeSeconds() int {
	return int(maxSessionLifetime.Seconds())
}

func (m *Manager) ensureCredentials() error {
	if m.creds.Username == "" {
		return errors.New("APP_USERNAME が設定されていません")
	}
	if m.creds.PasswordHash == "" {
		return errors.New("APP_PASSWORD_HASH が設定されていません")
	}
	if m.creds.SessionSecret == "" {
		return errors.New("SESSION_SECRET が設定されていません")
	}
	return nil
}

func (m *Manager) verifyPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(m.creds.PasswordHash), []byte(password)) == nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func readUnix(v interface{}) time.Time {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}
