// ABOUTME: Wire client tests over httptest endpoints
// ABOUTME: Covers header shaping, host failover, rate-limit classification and credential rotation

package driver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-archiver/models"
)

const userJSON = `{"data":{"user":{"result":{"__typename":"User","rest_id":"123"}}}}`

func twoDomainBundle() *models.CookieBundle {
	return &models.CookieBundle{Cookies: []models.Cookie{
		{Name: "auth_token", Value: "a1", Domain: ".twitter.com"},
		{Name: "ct0", Value: "c1", Domain: ".twitter.com"},
		{Name: "auth_token", Value: "a2", Domain: ".example.com"},
		{Name: "ct0", Value: "c2", Domain: ".example.com"},
		{Name: "gt", Value: "guest-1", Domain: ".twitter.com"},
	}}
}

func singlePairBundle() *models.CookieBundle {
	return &models.CookieBundle{Cookies: []models.Cookie{
		{Name: "auth_token", Value: "a1", Domain: ".twitter.com"},
		{Name: "ct0", Value: "c1", Domain: ".twitter.com"},
	}}
}

func newTestClient(t *testing.T, bundle *models.CookieBundle, hosts ...string) *TwitterClient {
	t.Helper()
	client, err := NewTwitterClient(bundle, "", nil)
	require.NoError(t, err)
	client.SetHosts(hosts)
	return client
}

func TestNewTwitterClient_RequiresAuthPair(t *testing.T) {
	_, err := NewTwitterClient(&models.CookieBundle{}, "", nil)
	assert.Error(t, err)
}

func TestUserByScreenName_SendsBrowserShapedHeaders(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		fmt.Fprint(w, userJSON)
	}))
	defer server.Close()

	client := newTestClient(t, twoDomainBundle(), server.URL)
	user, err := client.UserByScreenName(context.Background(), "alice")

	require.NoError(t, err)
	assert.Equal(t, "123", user.RestID)

	// Domains sort ".example.com" first, so its pair is active initially.
	assert.Contains(t, got.Get("Authorization"), "Bearer ")
	assert.Equal(t, "c2", got.Get("x-csrf-token"))
	assert.Contains(t, got.Get("Cookie"), "auth_token=a2")
	assert.Contains(t, got.Get("Cookie"), "ct0=c2")
	assert.Contains(t, got.Get("Cookie"), "gt=guest-1")
	assert.Equal(t, "OAuth2Session", got.Get("x-twitter-auth-type"))
	assert.Equal(t, "guest-1", got.Get("x-guest-token"))
}

func TestUserByScreenName_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"user":{}}}`)
	}))
	defer server.Close()

	client := newTestClient(t, singlePairBundle(), server.URL)
	_, err := client.UserByScreenName(context.Background(), "ghost")

	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestExecute_FailsOverToSecondHost(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, userJSON)
	}))
	defer good.Close()

	client := newTestClient(t, singlePairBundle(), bad.URL, good.URL)
	user, err := client.UserByScreenName(context.Background(), "alice")

	require.NoError(t, err)
	assert.Equal(t, "123", user.RestID)
	assert.Equal(t, 1, client.preferredHost, "working host becomes preferred")
}

func TestExecute_AllHostsRateLimitedReturnsTypedError(t *testing.T) {
	limited := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	s1 := httptest.NewServer(limited)
	defer s1.Close()
	s2 := httptest.NewServer(limited)
	defer s2.Close()

	client := newTestClient(t, singlePairBundle(), s1.URL, s2.URL)
	_, err := client.UserByScreenName(context.Background(), "alice")

	var rateLimit *models.RateLimitError
	require.True(t, errors.As(err, &rateLimit))
	assert.ElementsMatch(t, []string{s1.URL, s2.URL}, rateLimit.Hosts)
}

func TestExecute_ErrorCode88CountsAsRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errors":[{"message":"Rate limit exceeded","code":88}]}`)
	}))
	defer server.Close()

	client := newTestClient(t, singlePairBundle(), server.URL)
	_, err := client.UserByScreenName(context.Background(), "alice")

	assert.True(t, models.IsRateLimit(err))
}

func TestExecute_RotatesAuthPairOnAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-csrf-token") != "c1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, userJSON)
	}))
	defer server.Close()

	client := newTestClient(t, twoDomainBundle(), server.URL)
	user, err := client.UserByScreenName(context.Background(), "alice")

	require.NoError(t, err)
	assert.Equal(t, "123", user.RestID)
	assert.Equal(t, 1, client.authIndex, "second auth pair is active after rotation")
}

func TestExecute_ExhaustedRotationReturnsAuthInvalid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, singlePairBundle(), server.URL)
	_, err := client.UserByScreenName(context.Background(), "alice")

	assert.True(t, models.IsAuthInvalid(err))
}

func TestUserTweets_ThreadsCursorIntoVariables(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"data":{"user":{"result":{"rest_id":"123"}}}}`)
	}))
	defer server.Close()

	client := newTestClient(t, singlePairBundle(), server.URL)
	_, err := client.UserTweets(context.Background(), "123", 20, "cursor-token")

	require.NoError(t, err)
	assert.Contains(t, gotQuery, "cursor-token")
}

func TestCheckSession_ReportsLoggedOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, singlePairBundle(), server.URL)
	status, err := client.CheckSession(context.Background())

	require.NoError(t, err)
	assert.False(t, status.LoggedIn)
	assert.NotEmpty(t, status.Reason)
}
