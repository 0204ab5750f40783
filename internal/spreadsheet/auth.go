package spreadsheet

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const (
	defaultTokenURI = "https://oauth2.googleapis.com/token"
	jwtBearerGrant  = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	ScopeSpreadsheets         = "https://www.googleapis.com/auth/spreadsheets"
	ScopeSpreadsheetsReadOnly = "https://www.googleapis.com/auth/spreadsheets.readonly"
	ScopeDriveReadOnly        = "https://www.googleapis.com/auth/drive.readonly"
)

// ServiceAccountKey is the subset of a Google service-account JSON key
// needed to mint access tokens.
type ServiceAccountKey struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	TokenURI     string `json:"token_uri"`
}

// ParseServiceAccountKey accepts the key JSON either verbatim or base64 encoded.
func ParseServiceAccountKey(raw []byte) (*ServiceAccountKey, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, fmt.Errorf("service account key is empty")
	}
	data := []byte(trimmed)
	if !strings.HasPrefix(trimmed, "{") {
		decoded, err := base64.StdEncoding.DecodeString(trimmed)
		if err != nil {
			return nil, fmt.Errorf("service account key is neither JSON nor base64: %w", err)
		}
		data = decoded
	}

	var key ServiceAccountKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("decode service account key: %w", err)
	}
	if key.Type != "" && key.Type != "service_account" {
		return nil, fmt.Errorf("unsupported credential type %q", key.Type)
	}
	if key.ClientEmail == "" {
		return nil, fmt.Errorf("service account key missing client_email")
	}
	if key.PrivateKey == "" {
		return nil, fmt.Errorf("service account key missing private_key")
	}
	if key.TokenURI == "" {
		key.TokenURI = defaultTokenURI
	}
	return &key, nil
}

// TokenSource exchanges a signed service-account assertion for an access
// token and caches it until shortly before expiry.
type TokenSource struct {
	email      string
	keyID      string
	tokenURI   string
	scopes     []string
	privateKey *rsa.PrivateKey
	httpClient *http.Client

	mu    sync.Mutex
	token *oauth2.Token
}

var _ oauth2.TokenSource = (*TokenSource)(nil)

func NewTokenSource(key *ServiceAccountKey, scopes []string) (*TokenSource, error) {
	block, _ := pem.Decode([]byte(key.PrivateKey))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in service account private_key")
	}
	pk, err := parseRSAPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	if len(scopes) == 0 {
		return nil, fmt.Errorf("at least one oauth scope is required")
	}

	return &TokenSource{
		email:      key.ClientEmail,
		keyID:      key.PrivateKeyID,
		tokenURI:   key.TokenURI,
		scopes:     append([]string(nil), scopes...),
		privateKey: pk,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func parseRSAPrivateKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}

	pkcs8Key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := pkcs8Key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return rsaKey, nil
}

type assertionClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// SECURITY: assertion signed with RS256, valid for one hour as required by
// the token endpoint.
func (ts *TokenSource) makeAssertion(now time.Time) (string, error) {
	claims := assertionClaims{
		Scope: strings.Join(ts.scopes, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.email,
			Audience:  jwt.ClaimStrings{ts.tokenURI},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if ts.keyID != "" {
		token.Header["kid"] = ts.keyID
	}
	return token.SignedString(ts.privateKey)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Token implements oauth2.TokenSource.
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	return ts.TokenContext(context.Background())
}

func (ts *TokenSource) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != nil && time.Now().Before(ts.token.Expiry.Add(-time.Minute)) {
		return ts.token, nil
	}

	assertion, err := ts.makeAssertion(time.Now())
	if err != nil {
		return nil, fmt.Errorf("sign JWT: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrant)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return nil, &TokenError{Body: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &TokenError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, &TokenError{StatusCode: resp.StatusCode, Body: "token response missing access_token"}
	}

	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	ts.token = &oauth2.Token{
		AccessToken: tok.AccessToken,
		TokenType:   tokenType,
		Expiry:      time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}
	return ts.token, nil
}

// TokenError reports a failed credential exchange.
type TokenError struct {
	StatusCode int
	Body       string
}

func (e *TokenError) Error() string {
	if e.StatusCode == 0 {
		return "token exchange failed: " + e.Body
	}
	return fmt.Sprintf("token exchange HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *TokenError) ErrorCode() string { return "auth_failed" }
