// ABOUTME: Low-level HTTP client for the X/Twitter internal GraphQL API
// ABOUTME: Handles auth headers, host failover, credential rotation and rate-limit classification

package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"media-archiver/models"
)

const (
	userByScreenNameQueryID = "G3KGOASz96M-Qu0nwmGXNg"
	userTweetsQueryID       = "V7H0Ap3_Hh2FyS75OCDO3Q"

	desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	// Public web-client bearer tokens used as fallback candidates when no
	// environment override is supplied. Longevity is outside our control;
	// treat as configuration.
	defaultWebBearer = "AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs%3D1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA"
)

var defaultHosts = []string{
	"https://x.com/i/api/graphql",
	"https://twitter.com/i/api/graphql",
}

// sessionProbeHandle is a stable public account used by CheckSession.
const sessionProbeHandle = "X"

// requestOutcome classifies a single host attempt.
type requestOutcome int

const (
	outcomeOK requestOutcome = iota
	outcomeRateLimit
	outcomeAuthFailure
	outcomeGeneric
)

// TwitterClient talks to the internal GraphQL endpoints with cookie-based
// authentication. Credential rotation state (auth-pair and bearer indices) is
// per-client mutable state, advanced only on auth failures.
type TwitterClient struct {
	httpClient *http.Client
	logger     *slog.Logger

	hosts         []string
	preferredHost int

	cookies     *models.CookieBundle
	authPairs   []models.AuthPair
	authIndex   int
	bearers     []string
	bearerIndex int
}

// NewTwitterClient builds a client from the cookie bundle. bearerOverride, when
// non-empty, is tried before the built-in candidates.
func NewTwitterClient(cookies *models.CookieBundle, bearerOverride string, logger *slog.Logger) (*TwitterClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pairs := cookies.AuthPairs()
	if len(pairs) == 0 {
		return nil, fmt.Errorf("cookie bundle yields no (auth_token, ct0) pair")
	}

	bearers := []string{}
	if bearerOverride != "" {
		bearers = append(bearers, bearerOverride)
	}
	bearers = append(bearers, defaultWebBearer)

	return &TwitterClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				IdleConnTimeout:       90 * time.Second,
				MaxIdleConns:          10,
				MaxIdleConnsPerHost:   2,
			},
		},
		logger:    logger,
		hosts:     append([]string{}, defaultHosts...),
		cookies:   cookies,
		authPairs: pairs,
		bearers:   bearers,
	}, nil
}

// SetHTTPClient allows injecting a custom HTTP client (useful for testing).
func (c *TwitterClient) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetHosts overrides the endpoint list (useful for testing against httptest).
func (c *TwitterClient) SetHosts(hosts []string) {
	c.hosts = append([]string{}, hosts...)
	c.preferredHost = 0
}

// UserByScreenName resolves a handle to its user payload (rest_id).
func (c *TwitterClient) UserByScreenName(ctx context.Context, handle string) (*UserResult, error) {
	variables := map[string]interface{}{
		"screen_name":              handle,
		"withSafetyModeUserFields": true,
	}
	features := map[string]interface{}{
		"hidden_profile_subscriptions_enabled":                   true,
		"subscriptions_verification_info_verified_since_enabled": true,
		"highlights_tweets_tab_ui_enabled":                       true,
		"responsive_web_graphql_timeline_navigation_enabled":     true,
	}
	fieldToggles := map[string]interface{}{
		"withAuxiliaryUserLabels": false,
	}

	resp, err := c.execute(ctx, userByScreenNameQueryID, "UserByScreenName", variables, features, fieldToggles)
	if err != nil {
		return nil, err
	}
	if resp.Data.User.Result.RestID == "" {
		return nil, fmt.Errorf("user %s: %w", handle, models.ErrNotFound)
	}
	return &resp.Data.User.Result, nil
}

// UserTweets fetches one timeline page of size count for userID, optionally
// continuing from cursor.
func (c *TwitterClient) UserTweets(ctx context.Context, userID string, count int, cursor string) (*UserResult, error) {
	variables := map[string]interface{}{
		"userId":                                 userID,
		"count":                                  count,
		"includePromotedContent":                 false,
		"withQuickPromoteEligibilityTweetFields": false,
		"withVoice":                              true,
		"withV2Timeline":                         true,
	}
	if cursor != "" {
		variables["cursor"] = cursor
	}
	features := map[string]interface{}{
		"responsive_web_graphql_timeline_navigation_enabled": true,
		"responsive_web_graphql_exclude_directive_enabled":   true,
		"longform_notetweets_consumption_enabled":            true,
		"tweet_awards_web_tipping_enabled":                   false,
		"freedom_of_speech_not_reach_fetch_enabled":          true,
		"standardized_nudges_misinfo":                        true,
		"responsive_web_media_download_video_enabled":        true,
		"view_counts_everywhere_api_enabled":                 true,
		"creator_subscriptions_tweet_preview_api_enabled":    true,
		"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled": true,
	}
	fieldToggles := map[string]interface{}{
		"withArticlePlainText": false,
	}

	resp, err := c.execute(ctx, userTweetsQueryID, "UserTweets", variables, features, fieldToggles)
	if err != nil {
		return nil, err
	}
	return &resp.Data.User.Result, nil
}

// CheckSession probes a known public handle and reports whether any host
// accepts the current credentials.
func (c *TwitterClient) CheckSession(ctx context.Context) (*SessionStatus, error) {
	_, err := c.UserByScreenName(ctx, sessionProbeHandle)
	if err != nil {
		return &SessionStatus{LoggedIn: false, Reason: err.Error()}, nil
	}
	return &SessionStatus{LoggedIn: true, Host: c.hosts[c.preferredHost]}, nil
}

// execute runs the failover loop: up to three attempts over all hosts in
// preferred-first order. Rate limit on every host short-circuits into a typed
// rate-limit error; auth failures rotate the auth pair, then the bearer; when
// nothing is left to rotate the aggregated error surfaces.
func (c *TwitterClient) execute(ctx context.Context, queryID, opName string, variables, features, fieldToggles map[string]interface{}) (*GraphQLResponse, error) {
	const maxAttempts = 3

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		allRateLimited := true
		sawAuthFailure := false
		triedHosts := make([]string, 0, len(c.hosts))

		for _, hostIdx := range c.hostOrder() {
			host := c.hosts[hostIdx]
			triedHosts = append(triedHosts, host)

			resp, outcome, err := c.doRequest(ctx, host, queryID, opName, variables, features, fieldToggles)
			switch outcome {
			case outcomeOK:
				c.preferredHost = hostIdx
				return resp, nil
			case outcomeRateLimit:
				c.logger.Warn("Source host rate limited", "host", host, "operation", opName)
				lastErr = fmt.Errorf("host %s rate limited", host)
			case outcomeAuthFailure:
				allRateLimited = false
				sawAuthFailure = true
				c.logger.Warn("Source host rejected credentials", "host", host, "operation", opName)
				lastErr = fmt.Errorf("host %s rejected credentials", host)
			default:
				allRateLimited = false
				if err == nil {
					err = fmt.Errorf("request to %s failed", host)
				}
				lastErr = err
			}
		}

		if allRateLimited {
			return nil, &models.RateLimitError{Hosts: triedHosts}
		}

		if sawAuthFailure {
			if !c.rotateCredentials() {
				return nil, fmt.Errorf("%w: %v", models.ErrAuthInvalid, lastErr)
			}
			continue
		}

		return nil, fmt.Errorf("%s failed: %w", opName, lastErr)
	}

	return nil, fmt.Errorf("%s failed after retries: %w", opName, lastErr)
}

// hostOrder yields host indices with the preferred host first.
func (c *TwitterClient) hostOrder() []int {
	order := make([]int, 0, len(c.hosts))
	order = append(order, c.preferredHost)
	for i := range c.hosts {
		if i != c.preferredHost {
			order = append(order, i)
		}
	}
	return order
}

// rotateCredentials advances the auth-pair index, falling back to the bearer
// index once pairs are exhausted. Returns false when nothing is left.
func (c *TwitterClient) rotateCredentials() bool {
	if c.authIndex < len(c.authPairs)-1 {
		c.authIndex++
		c.logger.Info("Rotated auth pair", "auth_index", c.authIndex, "total_pairs", len(c.authPairs))
		return true
	}
	if c.bearerIndex < len(c.bearers)-1 {
		c.bearerIndex++
		c.logger.Info("Rotated bearer token", "bearer_index", c.bearerIndex, "total_bearers", len(c.bearers))
		return true
	}
	return false
}

// doRequest performs one GET against one host and classifies the outcome.
func (c *TwitterClient) doRequest(ctx context.Context, host, queryID, opName string, variables, features, fieldToggles map[string]interface{}) (*GraphQLResponse, requestOutcome, error) {
	reqURL, err := c.buildURL(host, queryID, opName, variables, features, fieldToggles)
	if err != nil {
		return nil, outcomeGeneric, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, outcomeGeneric, fmt.Errorf("failed to create request: %w", err)
	}
	c.applyHeaders(req, host)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, outcomeGeneric, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, outcomeGeneric, fmt.Errorf("failed to read response body: %w", err)
	}

	var parsed GraphQLResponse
	if len(body) > 0 {
		// A non-JSON body on an error status is fine; classification falls
		// through to the status code.
		_ = json.Unmarshal(body, &parsed)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || parsed.HasErrorCode(88):
		return nil, outcomeRateLimit, nil
	case resp.StatusCode == http.StatusUnauthorized || parsed.HasErrorCode(32):
		return nil, outcomeAuthFailure, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, outcomeGeneric, fmt.Errorf("%s on %s failed with status %d", opName, host, resp.StatusCode)
	case len(parsed.Errors) > 0:
		return nil, outcomeGeneric, fmt.Errorf("%s on %s returned errors: %s", opName, host, parsed.Errors[0].Message)
	}

	return &parsed, outcomeOK, nil
}

// buildURL encodes variables/features/fieldToggles as URL-encoded JSON query
// parameters, as the internal GraphQL expects.
func (c *TwitterClient) buildURL(host, queryID, opName string, variables, features, fieldToggles map[string]interface{}) (string, error) {
	values := url.Values{}
	for name, payload := range map[string]map[string]interface{}{
		"variables":    variables,
		"features":     features,
		"fieldToggles": fieldToggles,
	} {
		if payload == nil {
			continue
		}
		encoded, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("failed to encode %s: %w", name, err)
		}
		values.Set(name, string(encoded))
	}
	return fmt.Sprintf("%s/%s/%s?%s", host, queryID, opName, values.Encode()), nil
}

// applyHeaders sets the authenticated browser-shaped header set for one host.
func (c *TwitterClient) applyHeaders(req *http.Request, host string) {
	pair := c.authPairs[c.authIndex]
	bearer := c.bearers[c.bearerIndex]

	origin := strings.TrimSuffix(host, "/i/api/graphql")

	cookieHeader := fmt.Sprintf("auth_token=%s; ct0=%s", pair.AuthToken, pair.CT0)
	if extras := c.cookies.HeaderExtras(); extras != "" {
		cookieHeader += "; " + extras
	}

	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("x-csrf-token", pair.CT0)
	req.Header.Set("Cookie", cookieHeader)
	req.Header.Set("User-Agent", desktopUserAgent)
	req.Header.Set("Origin", origin)
	req.Header.Set("Referer", origin+"/")
	req.Header.Set("x-twitter-auth-type", "OAuth2Session")
	req.Header.Set("x-twitter-active-user", "yes")
	req.Header.Set("Content-Type", "application/json")
	if gt := c.cookies.GuestToken(); gt != "" {
		req.Header.Set("x-guest-token", gt)
	}
}
