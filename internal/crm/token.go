package crm

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/maqua/membership-api/internal/logger"
)

const (
	tokenTimeout = 12 * time.Second

	// Tokens are refreshed one minute before the reported expiry so an
	// in-flight gateway call never carries a token about to lapse.
	expirySlack   = time.Minute
	minTokenLife  = time.Minute
	defaultExpire = 7200 * time.Second
)

// TokenSource exchanges the application key/secret for a short-lived access
// token and caches it in process memory for its stated lifetime. It is safe
// for concurrent use.
type TokenSource struct {
	log       *logger.Logger
	client    *http.Client
	endpoint  string
	appKey    string
	appSecret string
	tenantID  string

	mu     sync.Mutex
	cached string
	until  time.Time

	now func() time.Time
}

// NewTokenSource creates a token source for the given auth endpoint
// (base URL joined with the token path).
func NewTokenSource(log *logger.Logger, baseURL, path, appKey, appSecret, tenantID string) *TokenSource {
	if log == nil {
		log = logger.Production()
	}
	return &TokenSource{
		log:       log,
		client:    &http.Client{Timeout: tokenTimeout},
		endpoint:  trimRightSlash(baseURL) + path,
		appKey:    appKey,
		appSecret: appSecret,
		tenantID:  tenantID,
		now:       time.Now,
	}
}

// Token returns a valid access token, fetching a fresh one when the cached
// token is missing or expired.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != "" && s.now().Before(s.until) {
		return s.cached, nil
	}
	return s.refreshLocked(ctx)
}

// Refresh discards the cached token and fetches a new one.
func (s *TokenSource) Refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *TokenSource) refreshLocked(ctx context.Context) (string, error) {
	token, expire, err := s.fetch(ctx)
	if err != nil {
		s.cached = ""
		return "", err
	}

	life := expire - expirySlack
	if life < minTokenLife {
		life = minTokenLife
	}
	s.cached = token
	s.until = s.now().Add(life)
	s.log.Debug("Access token refreshed", "expires_in", expire.String())
	return token, nil
}

func (s *TokenSource) fetch(ctx context.Context) (string, time.Duration, error) {
	timestamp := strconv.FormatInt(s.now().UnixMilli(), 10)

	params := url.Values{}
	params.Set("appKey", s.appKey)
	params.Set("timestamp", timestamp)
	params.Set("signature", Signature(s.appKey, timestamp, s.appSecret))
	if s.tenantID != "" {
		params.Set("tenantId", s.tenantID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return "", 0, fmt.Errorf("building token request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", 0, &GatewayError{Path: "token exchange", Detail: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, &GatewayError{Path: "token exchange", Detail: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, &GatewayError{Path: "token exchange", Status: resp.StatusCode, Detail: string(body)}
	}

	parsed := gjson.ParseBytes(body)
	if parsed.Get("code").String() != "00000" {
		return "", 0, &GatewayError{Path: "token exchange", Detail: "unexpected response code " + parsed.Get("code").String()}
	}

	token := parsed.Get("data.access_token").String()
	if token == "" {
		return "", 0, &GatewayError{Path: "token exchange", Detail: "token missing in response"}
	}

	expire := defaultExpire
	if v := parsed.Get("data.expire"); v.Exists() && v.Int() > 0 {
		expire = time.Duration(v.Int()) * time.Second
	}

	return token, expire, nil
}

// Signature computes the self-app auth signature: base64 of the HMAC-SHA256
// of "appKey<key>timestamp<ts>" keyed with the application secret.
func Signature(appKey, timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("appKey" + appKey + "timestamp" + timestamp))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func trimRightSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
