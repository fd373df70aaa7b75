package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LorillaJm/es6-sub000/config"
	"github.com/LorillaJm/es6-sub000/pkg/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubBlacklist struct {
	revoked map[string]bool
	err     error
}

func (s *stubBlacklist) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	return s.revoked[jti], s.err
}

type stubLimiter struct {
	remaining int
	err       error
	keys      []string
}

func (s *stubLimiter) CheckRateLimit(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	s.keys = append(s.keys, key)
	if s.err != nil {
		return false, s.err
	}
	s.remaining--
	return s.remaining >= 0, nil
}

func newJWT() *jwt.Manager {
	return jwt.NewManager(&config.AuthConfig{JWTSecret: "middleware-secret-0123", Issuer: "test", AccessTokenTTL: time.Minute})
}

func echoIdentity(c *gin.Context) {
	c.String(http.StatusOK, c.GetString(CtxPersonHandle)+"/"+c.GetString(CtxRole))
}

// ── JWTAuth ──

func TestJWTAuth(t *testing.T) {
	mgr := newJWT()
	token, _ := mgr.GenerateAccessToken("alice", jwt.RoleMember, "org-1")
	claims, _ := mgr.ParseToken(token)

	tests := []struct {
		name      string
		header    string
		blacklist TokenBlacklist
		want      int
	}{
		{"缺少认证头", "", nil, http.StatusUnauthorized},
		{"格式错误", "Token " + token, nil, http.StatusUnauthorized},
		{"签名无效", "Bearer " + token + "x", nil, http.StatusUnauthorized},
		{"有效", "Bearer " + token, nil, http.StatusOK},
		{"已吊销", "Bearer " + token, &stubBlacklist{revoked: map[string]bool{claims.ID: true}}, http.StatusUnauthorized},
		{"黑名单不可用时放行", "Bearer " + token, &stubBlacklist{err: errors.New("down")}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/", JWTAuth(mgr, tt.blacklist, zap.NewNop()), echoIdentity)

			w := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, w.Code)
			}
			if tt.want == http.StatusOK && w.Body.String() != "alice/member" {
				t.Errorf("身份未注入上下文: %s", w.Body.String())
			}
		})
	}
}

func TestRoleAuth(t *testing.T) {
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		c.Set(CtxRole, c.Query("role"))
		c.Next()
	}, RoleAuth(jwt.RoleSupervisor, jwt.RoleAdmin), echoIdentity)

	for role, want := range map[string]int{
		"":                 http.StatusUnauthorized,
		jwt.RoleMember:     http.StatusForbidden,
		jwt.RoleSupervisor: http.StatusOK,
		jwt.RoleAdmin:      http.StatusOK,
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/?role="+role, nil))
		if w.Code != want {
			t.Errorf("role=%q: expected %d, got %d", role, want, w.Code)
		}
	}
}

// ── RateLimit ──

func TestRateLimit_PerPersonAndRoute(t *testing.T) {
	limiter := &stubLimiter{remaining: 1}
	r := gin.New()
	r.POST("/check-in", func(c *gin.Context) {
		c.Set(CtxPersonHandle, "alice")
		c.Next()
	}, RateLimit(limiter, 1, time.Minute, zap.NewNop()), echoIdentity)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/check-in", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("第一次请求应放行，实际: %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/check-in", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("超过限额应返回 429，实际: %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After 应为窗口秒数，实际: %s", w.Header().Get("Retry-After"))
	}
	if limiter.keys[0] != "rate_limit:alice:/check-in" {
		t.Errorf("限流键错误: %s", limiter.keys[0])
	}
}

func TestRateLimit_FailsOpen(t *testing.T) {
	r := gin.New()
	r.POST("/x", RateLimit(&stubLimiter{err: errors.New("redis down")}, 1, time.Minute, zap.NewNop()), echoIdentity)
	r.POST("/y", RateLimit(nil, 1, time.Minute, zap.NewNop()), echoIdentity)

	for _, path := range []string{"/x", "/y"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("POST", path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s: 限流不可用时应放行，实际: %d", path, w.Code)
		}
	}
}

// ── RequestID / BodyLimit ──

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(RequestIDKey)) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	r.ServeHTTP(w, req)
	if w.Body.String() != "abc" || w.Header().Get("X-Request-ID") != "abc" {
		t.Errorf("应沿用请求头中的 ID: body=%s header=%s", w.Body.String(), w.Header().Get("X-Request-ID"))
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 200))
	r.ServeHTTP(w, req)
	if len(w.Body.String()) != 36 {
		t.Errorf("过长的 ID 应被替换为 UUID，实际: %s", w.Body.String())
	}
}

func TestBodyLimit(t *testing.T) {
	r := gin.New()
	r.Use(BodyLimit(16))
	r.POST("/", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			_ = c.Error(err)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("a", 64))))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/", strings.NewReader("small")))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}
