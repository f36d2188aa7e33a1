package app

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/jun/driveuploader/internal/adapter"
	"github.com/jun/driveuploader/internal/adapter/googledrive"
	"github.com/jun/driveuploader/internal/adapter/memory"
	"github.com/jun/driveuploader/internal/auth"
	"github.com/jun/driveuploader/internal/config"
	"github.com/jun/driveuploader/internal/crypto"
	"github.com/jun/driveuploader/internal/handler"
	"github.com/jun/driveuploader/internal/logging"
	"github.com/jun/driveuploader/internal/secret"
	"github.com/jun/driveuploader/internal/session"
)

// apiPrefix is added by CloudFront in front of API Gateway and stripped here.
const apiPrefix = "/api"

// Components are the external collaborators of the app.
type Components struct {
	Auth      *auth.AuthService
	Encryptor crypto.Encryptor
	Storage   adapter.StorageProvider
}

// App holds the dependencies for the Lambda function.
type App struct {
	authHandler   *handler.AuthHandler
	uploadHandler *handler.UploadHandler
	pageHandler   *handler.PageHandler

	devMode          bool
	apiGatewaySecret string
	allowOrigin      string
	addr             string
	log              zerolog.Logger
}

// NewApp loads configuration, resolves secrets and wires the production (or
// DEV_MODE) collaborators. Any missing required setting is an error.
func NewApp(ctx context.Context) (*App, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, logging.New("info", false), err
	}
	log := logging.New(cfg.LogLevel, cfg.LogPretty)

	var (
		resolver  secret.Resolver
		kmsClient *kms.Client
	)
	if cfg.DevMode {
		resolver = secret.NewEnvResolver()
		log.Info().Msg("using EnvResolver (DEV_MODE=true)")
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, log, fmt.Errorf("load aws config: %w", err)
		}
		resolver = secret.NewSSMResolver(ssm.NewFromConfig(awsCfg))
		kmsClient = kms.NewFromConfig(awsCfg)
		log.Info().Msg("using SSMResolver (SSM Parameter Store)")
	}

	secrets, err := cfg.ResolveSecrets(ctx, resolver)
	if err != nil {
		return nil, log, err
	}

	var encryptor crypto.Encryptor
	if kmsClient != nil && cfg.KMSKeyID != "" {
		encryptor = crypto.NewKMSService(kmsClient, cfg.KMSKeyID)
		log.Info().Str("key", cfg.KMSKeyID).Msg("sealing session tokens with KMS")
	} else {
		local, err := crypto.NewLocalEncryptor(secrets.SessionSecret)
		if err != nil {
			return nil, log, err
		}
		encryptor = local
		log.Info().Msg("sealing session tokens with local key")
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: secrets.GoogleClientSecret,
		RedirectURL:  cfg.RedirectURL(),
		Scopes:       auth.Scopes,
		Endpoint:     google.Endpoint,
	}
	oauthConfig.Endpoint.AuthStyle = oauth2.AuthStyleInParams
	authService := auth.NewAuthService(oauthConfig, auth.NewOIDCVerifier(auth.GoogleIssuer, cfg.GoogleClientID))

	var storage adapter.StorageProvider
	if cfg.DevMode {
		storage = memory.NewProvider()
		log.Info().Msg("using MemoryProvider (DEV_MODE=true)")
	} else {
		storage = googledrive.NewProvider(cfg.DriveFolderID)
	}

	app, err := New(cfg, secrets, Components{Auth: authService, Encryptor: encryptor, Storage: storage}, log)
	return app, log, err
}

// New builds the handlers and router from resolved configuration.
func New(cfg *config.Config, secrets *config.Secrets, c Components, log zerolog.Logger) (*App, error) {
	maxBytes, err := cfg.MaxUploadBytes()
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(secrets.SessionSecret, c.Encryptor, c.Auth, cfg.SessionMaxAge, log)
	if !cfg.DevMode {
		// Production: page (CloudFront) and API (Gateway) may be on different
		// origins, so the cookie must travel on cross-site requests.
		sessions.WithSameSite("None")
	}

	home := strings.TrimSuffix(cfg.BaseURL, "/") + "/"
	return &App{
		authHandler:      handler.NewAuthHandler(c.Auth, sessions, home, log),
		uploadHandler:    handler.NewUploadHandler(sessions, c.Storage, maxBytes, log),
		pageHandler:      handler.NewPageHandler(sessions, apiPrefix, log),
		devMode:          cfg.DevMode,
		apiGatewaySecret: secrets.APIGatewaySecret,
		allowOrigin:      strings.TrimSuffix(cfg.BaseURL, "/"),
		addr:             ":" + cfg.Port,
		log:              log,
	}, nil
}

// Addr is the listen address for the local server.
func (app *App) Addr() string {
	return app.addr
}

// HandleRequest routes API Gateway requests to the appropriate handler.
func (app *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	path := req.Path
	method := req.HTTPMethod

	app.log.Debug().Str("method", method).Str("path", path).Msg("request")

	// CORS Preflight
	if method == http.MethodOptions {
		return app.corsResponse(events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}), nil
	}

	// Security: only CloudFront knows the origin secret.
	if !app.devMode && !app.originVerified(req.Headers) {
		app.log.Warn().Str("path", path).Msg("missing or invalid X-Origin-Verify header")
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusForbidden,
			Body:       "Forbidden: Access denied",
		}, nil
	}

	path = strings.TrimPrefix(path, apiPrefix)
	if path == "" {
		path = "/"
	}

	switch {
	case path == "/upload":
		return app.corsResponse(app.must(app.uploadHandler.Upload(ctx, req))), nil
	case path == "/" && method == http.MethodGet:
		return app.corsResponse(app.must(app.pageHandler.Index(ctx, req))), nil
	case path == "/healthz" && method == http.MethodGet:
		return app.corsResponse(events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Body: "ok"}), nil
	}

	// /auth
	if strings.HasPrefix(path, "/auth/") {
		if path == "/auth/login" && method == http.MethodGet {
			return app.corsResponse(app.must(app.authHandler.Login(ctx, req))), nil
		}
		if path == "/auth/callback" && method == http.MethodGet {
			return app.corsResponse(app.must(app.authHandler.Callback(ctx, req))), nil
		}
		if path == "/auth/logout" && method == http.MethodPost {
			return app.corsResponse(app.must(app.authHandler.Logout(ctx, req))), nil
		}
		if path == "/auth/session" && method == http.MethodGet {
			return app.corsResponse(app.must(app.authHandler.Session(ctx, req))), nil
		}
	}

	return app.corsResponse(events.APIGatewayProxyResponse{
		StatusCode: http.StatusNotFound,
		Body:       fmt.Sprintf("Not Found: %s %s", method, path),
	}), nil
}

func (app *App) originVerified(headers map[string]string) bool {
	if app.apiGatewaySecret == "" {
		return false
	}
	for k, v := range headers {
		if strings.EqualFold(k, "X-Origin-Verify") {
			return subtle.ConstantTimeCompare([]byte(v), []byte(app.apiGatewaySecret)) == 1
		}
	}
	return false
}

// corsResponse adds CORS headers to an API Gateway response.
func (app *App) corsResponse(resp events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	resp.Headers["Access-Control-Allow-Origin"] = app.allowOrigin
	resp.Headers["Access-Control-Allow-Credentials"] = "true"
	resp.Headers["Access-Control-Allow-Methods"] = "GET,POST,OPTIONS"
	resp.Headers["Access-Control-Allow-Headers"] = "Content-Type"
	return resp
}

// must unwraps a handler response, logging the error.
func (app *App) must(resp events.APIGatewayProxyResponse, err error) events.APIGatewayProxyResponse {
	if err != nil {
		app.log.Error().Err(err).Msg("handler error")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return resp
}
