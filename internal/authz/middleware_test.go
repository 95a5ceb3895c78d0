package authz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetpoint/meetpoint/internal/shared"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestAs(principalID int64) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if principalID == 0 {
		return r
	}
	ctx := shared.ContextWithPrincipal(r.Context(), &shared.Principal{ID: principalID})
	return r.WithContext(ctx)
}

func TestRequirePrincipalRejectsAnonymous(t *testing.T) {
	mw := Middleware{Service: newTestService(newStubRepo())}

	rec := httptest.NewRecorder()
	mw.RequirePrincipal(okHandler()).ServeHTTP(rec, requestAs(0))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"status":401`)

	rec = httptest.NewRecorder()
	mw.RequirePrincipal(okHandler()).ServeHTTP(rec, requestAs(5))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAdminEmitsProblems(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	require.NoError(t, svc.OnboardDefaults(context.Background(), repo, 9, true))
	mw := Middleware{Service: svc}

	rec := httptest.NewRecorder()
	mw.RequireAdmin(okHandler()).ServeHTTP(rec, requestAs(5))
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"title":"Forbidden"`)

	rec = httptest.NewRecorder()
	mw.RequireAdmin(okHandler()).ServeHTTP(rec, requestAs(9))
	assert.Equal(t, http.StatusOK, rec.Code)
}
