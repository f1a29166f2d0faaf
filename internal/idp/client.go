// Пакет idp — клиент внешнего провайдера удостоверений (Google OIDC).
// Реализует Authorization Code Flow и прямую проверку id_token.
// Endpoints берутся из discovery-документа провайдера, а не зашиваются в код.
package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrUpstream — провайдер удостоверений недоступен или отвечает некорректно.
// Наружу транслируется как 502 IDP_UNAVAILABLE, а не как 500.
var ErrUpstream = errors.New("провайдер удостоверений недоступен")

// discoveryCacheKey — единственный ключ кэша discovery-документа.
// LRU используется ради TTL, документ у провайдера один.
const discoveryCacheKey = "discovery"

// DiscoveryDocument — подмножество OIDC discovery-документа,
// которое использует Auth Module.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
}

// Identity — нормализованный профиль пользователя от провайдера.
// Единый результат обоих путей: userinfo endpoint и проверки id_token.
type Identity struct {
	// Subject — стабильный идентификатор аккаунта у провайдера (sub).
	Subject string
	// Email — адрес электронной почты аккаунта.
	Email string
	// EmailVerified — подтверждён ли адрес провайдером.
	// Непроверенный адрес не годится как ключ связывания аккаунтов.
	EmailVerified bool
	// Name — отображаемое имя.
	Name string
	// Picture — URL аватара (может быть пустым).
	Picture string
}

// Config — конфигурация клиента провайдера удостоверений.
type Config struct {
	// ClientID — OAuth2 Client ID приложения.
	ClientID string
	// ClientSecret — OAuth2 Client Secret (confidential client).
	ClientSecret string
	// DiscoveryURL — URL discovery-документа (AU_GOOGLE_DISCOVERY_URL).
	DiscoveryURL string
	// DiscoveryTTL — время жизни кэша discovery-документа (AU_DISCOVERY_CACHE_TTL).
	DiscoveryTTL time.Duration
	// Timeout — таймаут HTTP-запросов к провайдеру (AU_IDP_TIMEOUT).
	// Используется при HTTPClient == nil.
	Timeout time.Duration
	// HTTPClient — HTTP-клиент (nil — создаётся новый с Timeout).
	HTTPClient *http.Client
}

// Client — клиент Google OIDC endpoints. Confidential client:
// обмен code → tokens идёт с client_secret, server-to-server.
type Client struct {
	clientID     string
	clientSecret string
	discoveryURL string
	httpClient   *http.Client
	logger       *slog.Logger
	// discovery — TTL-кэш discovery-документа, чтобы не ходить
	// к провайдеру на каждый вход.
	discovery *expirable.LRU[string, *DiscoveryDocument]
}

// NewClient создаёт клиент провайдера на основе конфигурации.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	ttl := cfg.DiscoveryTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &Client{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		discoveryURL: cfg.DiscoveryURL,
		httpClient:   httpClient,
		logger:       logger.With(slog.String("component", "idp_client")),
		discovery:    expirable.NewLRU[string, *DiscoveryDocument](1, nil, ttl),
	}
}

// Discovery возвращает discovery-документ провайдера.
// Результат кэшируется на DiscoveryTTL; по истечении документ
// запрашивается заново.
func (c *Client) Discovery(ctx context.Context) (*DiscoveryDocument, error) {
	if doc, ok := c.discovery.Get(discoveryCacheKey); ok {
		return doc, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.discoveryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса discovery: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: запрос discovery: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: discovery вернул статус %d", ErrUpstream, resp.StatusCode)
	}

	var doc DiscoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: парсинг discovery: %v", ErrUpstream, err)
	}
	if doc.AuthorizationEndpoint == "" || doc.TokenEndpoint == "" || doc.JWKSURI == "" {
		return nil, fmt.Errorf("%w: discovery-документ неполный", ErrUpstream)
	}

	c.discovery.Add(discoveryCacheKey, &doc)
	c.logger.Debug("Discovery-документ обновлён",
		slog.String("issuer", doc.Issuer),
	)
	return &doc, nil
}

// AuthorizationURL формирует URL для redirect пользователя на страницу
// входа провайдера. redirectURI — callback Auth Module,
// state — случайный параметр для CSRF-защиты.
func (c *Client) AuthorizationURL(ctx context.Context, redirectURI, state string) (string, error) {
	doc, err := c.Discovery(ctx)
	if err != nil {
		return "", err
	}

	params := url.Values{
		"client_id":     {c.clientID},
		"response_type": {"code"},
		"redirect_uri":  {redirectURI},
		"scope":         {"openid email profile"},
		"state":         {state},
	}
	return doc.AuthorizationEndpoint + "?" + params.Encode(), nil
}

// TokenResponse — ответ token endpoint провайдера.
type TokenResponse struct {
	AccessToken string `json:"access_token"` //nolint:gosec // G117: структура токена OAuth2
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	IDToken     string `json:"id_token"`
}

// tokenError — ошибка token endpoint провайдера.
type tokenError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// ExchangeCode обменивает authorization code на tokens.
// redirectURI — тот же redirect URI, что использовался в authorization URL.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error) {
	doc, err := c.Discovery(ctx)
	if err != nil {
		return nil, err
	}

	data := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"code":          {code},
		"redirect_uri":  {redirectURI},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, doc.TokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: запрос к token endpoint: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: чтение ответа token endpoint: %v", ErrUpstream, err)
	}

	if resp.StatusCode != http.StatusOK {
		var tokenErr tokenError
		if jsonErr := json.Unmarshal(body, &tokenErr); jsonErr == nil && tokenErr.Error != "" {
			return nil, fmt.Errorf("%w: token endpoint: %s — %s", ErrUpstream, tokenErr.Error, tokenErr.Description)
		}
		return nil, fmt.Errorf("%w: token endpoint вернул статус %d", ErrUpstream, resp.StatusCode)
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("%w: парсинг token response: %v", ErrUpstream, err)
	}
	return &tokenResp, nil
}

// Userinfo запрашивает профиль пользователя через userinfo endpoint
// с access token, полученным при обмене code.
func (c *Client) Userinfo(ctx context.Context, accessToken string) (*Identity, error) {
	doc, err := c.Discovery(ctx)
	if err != nil {
		return nil, err
	}
	if doc.UserinfoEndpoint == "" {
		return nil, fmt.Errorf("%w: провайдер не публикует userinfo endpoint", ErrUpstream)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, doc.UserinfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: запрос к userinfo endpoint: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo вернул статус %d", ErrUpstream, resp.StatusCode)
	}

	var info struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: парсинг userinfo: %v", ErrUpstream, err)
	}

	return &Identity{
		Subject:       info.Sub,
		Email:         info.Email,
		EmailVerified: info.EmailVerified,
		Name:          info.Name,
		Picture:       info.Picture,
	}, nil
}
