package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lalith-99/chatlog/internal/auth"
	"github.com/lalith-99/chatlog/internal/observ"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func adminRouter(secret string) *gin.Engine {
	r := gin.New()
	r.GET("/admin", AuthMiddleware(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": GetSubject(c)})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	token, err := auth.GenerateToken("ops", "s3cret", time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{"valid", "s3cret", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "s3cret", "bearer " + token, http.StatusOK},
		{"missing", "s3cret", "", http.StatusUnauthorized},
		{"not bearer", "s3cret", "Basic abc", http.StatusUnauthorized},
		{"bad token", "s3cret", "Bearer nope", http.StatusUnauthorized},
		{"disabled", "", "Bearer " + token, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			adminRouter(tc.secret).ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
			if tc.want == http.StatusOK {
				assert.JSONEq(t, `{"subject":"ops"}`, w.Body.String())
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), AccessLog(zap.NewNop()))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get(HeaderRequestID)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(HeaderRequestID))
}

func TestInstrument(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observ.NewMetrics(reg)

	r := gin.New()
	r.Use(Instrument(metrics))
	r.GET("/things/:id", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	for _, id := range []string{"a", "b"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/things/"+id, nil))
		require.Equal(t, http.StatusTeapot, w.Code)
	}

	count, err := testutil.GatherAndCount(reg, "chatlog_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "both requests share the route label")
}
