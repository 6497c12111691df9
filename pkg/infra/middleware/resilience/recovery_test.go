package resilience

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	mwopts "github.com/kart-io/virtual-ta/pkg/options/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRecovery_NoPanic(t *testing.T) {
	handlerCalled := false

	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)
	r.Use(Recovery())
	r.GET("/test", func(_ *gin.Context) { handlerCalled = true })
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	if !handlerCalled {
		t.Error("Expected handler to be called when no panic occurs")
	}
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestRecoveryWithOptions_StackTrace(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	for _, enabled := range []bool{true, false} {
		w := httptest.NewRecorder()
		_, r := gin.CreateTestContext(w)
		r.Use(RecoveryWithOptions(mwopts.RecoveryOptions{EnableStackTrace: enabled}, nil))
		r.GET("/test", func(_ *gin.Context) { panic("test panic with stack") })
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		if w.Code != http.StatusInternalServerError {
			t.Errorf("Expected status code %d, got %d", http.StatusInternalServerError, w.Code)
		}
		if !strings.Contains(w.Body.String(), "test panic with stack") {
			t.Errorf("Expected panic value in body, got %s", w.Body.String())
		}
		if got := strings.Contains(w.Body.String(), "goroutine"); got != enabled {
			t.Errorf("stack in body = %v, want %v", got, enabled)
		}
	}
}

func TestRecoveryWithOptions_ProductionHidesStack(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)
	r.Use(RecoveryWithOptions(mwopts.RecoveryOptions{EnableStackTrace: true}, nil))
	r.GET("/test", func(_ *gin.Context) { panic("prod panic") })
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	if strings.Contains(w.Body.String(), "goroutine") {
		t.Error("stack trace must not reach clients in production")
	}
}

func TestRecoveryWithOptions_OnPanicCallback(t *testing.T) {
	var panicErr interface{}
	var panicStack []byte

	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)
	r.Use(RecoveryWithOptions(mwopts.RecoveryOptions{}, func(_ *gin.Context, err interface{}, stack []byte) {
		panicErr = err
		panicStack = stack
	}))
	r.GET("/test", func(_ *gin.Context) { panic("callback test panic") })
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	if panicErr != "callback test panic" {
		t.Errorf("Expected panic error 'callback test panic', got %v", panicErr)
	}
	if len(panicStack) == 0 {
		t.Error("Expected stack trace to be passed to callback")
	}
}
