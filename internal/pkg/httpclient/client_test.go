package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoReturnsStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"detail":"exists"}`))
	}))
	defer srv.Close()

	c := New().WithoutRetry().WithBearerToken("tok")
	res, err := c.Post(context.Background(), srv.URL+"/api/user", map[string]string{"username": "u"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, res.Status)
	assert.False(t, res.OK())
	assert.JSONEq(t, `{"detail":"exists"}`, string(res.Body))
}

func TestWithoutRetrySendsOnce(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	res, err := New().WithoutRetry().Post(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestPostFormEncodesFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "admin", r.PostForm.Get("username"))
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	res, err := New().WithoutRetry().PostForm(context.Background(), srv.URL+"/login", map[string]string{"username": "admin"})
	require.NoError(t, err)
	assert.True(t, res.OK())
}
