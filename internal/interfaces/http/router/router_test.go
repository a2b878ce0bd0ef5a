package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func text(body string) gin.HandlerFunc {
	return func(c *gin.Context) { c.String(http.StatusOK, body) }
}

func serve(engine *gin.Engine, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestNewRouter_Version(t *testing.T) {
	assert.Equal(t, "/api/v1", NewRouter(gin.New()).BasePath())
	assert.Equal(t, "/api/v2", NewRouter(gin.New(), WithAPIVersion("v2")).BasePath())
	assert.Equal(t, "/api/v1", NewRouter(gin.New(), WithAPIVersion("")).BasePath())
}

func TestRouter_SetupMountsGroups(t *testing.T) {
	engine := gin.New()
	items := NewDomainGroup("fulfillment", "/fulfillment")
	items.GET("/items", text("items"))
	notifications := NewDomainGroup("notifications", "/notifications")
	notifications.GET("", text("list")).POST("/:id/read", text("read"))

	NewRouter(engine).Register(items).Register(notifications).Setup()

	tests := []struct {
		method string
		target string
		body   string
	}{
		{http.MethodGet, "/api/v1/fulfillment/items", "items"},
		{http.MethodGet, "/api/v1/notifications", "list"},
		{http.MethodPost, "/api/v1/notifications/abc/read", "read"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			w := serve(engine, tt.method, tt.target)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.body, w.Body.String())
		})
	}

	assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/fulfillment/items").Code)
}

func TestRouterUseAppliesToAPIOnly(t *testing.T) {
	engine := gin.New()
	engine.GET("/outside", text("outside"))

	r := NewRouter(engine).Use(func(c *gin.Context) {
		c.Header("X-API-Middleware", "applied")
		c.Next()
	})
	r.Register(NewDomainGroup("test", "/test").GET("/ping", text("pong")))
	r.Setup()

	assert.Equal(t, "applied", serve(engine, http.MethodGet, "/api/v1/test/ping").Header().Get("X-API-Middleware"))
	assert.Empty(t, serve(engine, http.MethodGet, "/outside").Header().Get("X-API-Middleware"))
}

func TestDomainGroup_MiddlewareIsScoped(t *testing.T) {
	engine := gin.New()
	scoped := NewDomainGroup("scoped", "/scoped").Use(func(c *gin.Context) {
		c.Header("X-Group", "scoped")
		c.Next()
	})
	scoped.GET("/a", text("a"))
	scoped.Group("child", "/child").GET("/b", text("b"))
	plain := NewDomainGroup("plain", "/plain").GET("/c", text("c"))

	NewRouter(engine).Register(scoped).Register(plain).Setup()

	assert.Equal(t, "scoped", serve(engine, http.MethodGet, "/api/v1/scoped/a").Header().Get("X-Group"))
	assert.Equal(t, "scoped", serve(engine, http.MethodGet, "/api/v1/scoped/child/b").Header().Get("X-Group"))
	assert.Empty(t, serve(engine, http.MethodGet, "/api/v1/plain/c").Header().Get("X-Group"))
}

func TestDomainGroup_NameAndPrefix(t *testing.T) {
	g := NewDomainGroup("fulfillment", "/fulfillment")
	assert.Equal(t, "fulfillment", g.Name())
	assert.Equal(t, "/fulfillment", g.Prefix())
}

func TestRouter_Routes(t *testing.T) {
	g := NewDomainGroup("fulfillment", "/fulfillment")
	g.Group("items", "/items").POST("", text("")).GET("/:id", text(""))
	g.Group("orders", "/orders").POST("/:id/label", text(""))

	r := NewRouter(gin.New()).Register(g)
	routes := r.Routes()

	require.Len(t, routes, 3)
	assert.Equal(t, []Route{
		{Method: http.MethodPost, Path: "/api/v1/fulfillment/items"},
		{Method: http.MethodGet, Path: "/api/v1/fulfillment/items/:id"},
		{Method: http.MethodPost, Path: "/api/v1/fulfillment/orders/:id/label"},
	}, routes)
}
