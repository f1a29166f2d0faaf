package idp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidExternalToken — id_token провайдера не прошёл проверку
// (подпись, issuer, audience или срок действия).
var ErrInvalidExternalToken = errors.New("недействительный внешний id_token")

// Допустимые значения issuer в id_token Google.
// Google исторически выдаёт оба варианта, со схемой и без.
var googleIssuers = []string{
	"accounts.google.com",
	"https://accounts.google.com",
}

// externalClaims — claims id_token провайдера.
type externalClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	jwt.RegisteredClaims
}

// Verifier проверяет id_token провайдера по его JWKS.
// Используется обоими путями федеративного входа: callback после
// обмена code и прямой проверкой токена от SPA.
type Verifier struct {
	client   *Client
	clientID string
	logger   *slog.Logger

	// jwks строится лениво при первой проверке: jwks_uri известен
	// только из discovery-документа. Неудачная инициализация не
	// кэшируется, следующая проверка попробует снова.
	mu   sync.Mutex
	jwks keyfunc.Keyfunc
}

// NewVerifier создаёт Verifier поверх клиента провайдера.
func NewVerifier(client *Client, logger *slog.Logger) *Verifier {
	return &Verifier{
		client:   client,
		clientID: client.clientID,
		logger:   logger.With(slog.String("component", "idp_verifier")),
	}
}

// NewVerifierWithKeyfunc создаёт Verifier с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewVerifierWithKeyfunc(kf keyfunc.Keyfunc, clientID string, logger *slog.Logger) *Verifier {
	return &Verifier{
		jwks:     kf,
		clientID: clientID,
		logger:   logger.With(slog.String("component", "idp_verifier")),
	}
}

// keyfuncCtx возвращает keyfunc, инициализируя JWKS storage при первом
// обращении. Storage обновляет ключи в фоне средствами jwkset.
func (v *Verifier) keyfuncCtx(ctx context.Context) (keyfunc.Keyfunc, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.jwks != nil {
		return v.jwks, nil
	}

	doc, err := v.client.Discovery(ctx)
	if err != nil {
		return nil, err
	}

	storage, err := jwkset.NewStorageFromHTTP(doc.JWKSURI, jwkset.HTTPClientStorageOptions{
		Client:                    v.client.httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           time.Hour,
		RefreshErrorHandler: func(_ context.Context, err error) {
			v.logger.Error("Ошибка обновления JWKS провайдера",
				slog.String("error", err.Error()),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: создание JWKS storage: %v", ErrUpstream, err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: создание keyfunc: %v", ErrUpstream, err)
	}

	v.jwks = k
	v.logger.Info("JWKS провайдера подключён",
		slog.String("jwks_uri", doc.JWKSURI),
	)
	return v.jwks, nil
}

// VerifyIDToken проверяет id_token провайдера: подпись по JWKS (RS256),
// audience — наш Client ID, issuer — один из допустимых для Google,
// срок действия обязателен. Возвращает нормализованный профиль.
func (v *Verifier) VerifyIDToken(ctx context.Context, idToken string) (*Identity, error) {
	kf, err := v.keyfuncCtx(ctx)
	if err != nil {
		return nil, err
	}

	claims := &externalClaims{}
	token, err := jwt.ParseWithClaims(idToken, claims, kf.KeyfuncCtx(ctx),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithAudience(v.clientID),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExternalToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidExternalToken
	}

	// Issuer допускает два варианта, штатный jwt.WithIssuer — только один.
	issuerOK := false
	for _, iss := range googleIssuers {
		if claims.Issuer == iss {
			issuerOK = true
			break
		}
	}
	if !issuerOK {
		return nil, fmt.Errorf("%w: недопустимый issuer %q", ErrInvalidExternalToken, claims.Issuer)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: отсутствует subject", ErrInvalidExternalToken)
	}

	return &Identity{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}
