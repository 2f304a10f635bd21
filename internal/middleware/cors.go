package middleware

import (
	"fmt"
	"net/http"

	"github.com/jub0bs/cors"
	"github.com/labstack/echo/v4"

	"courtrec-gateway/internal/config"
)

// corsRequestHeaders are the non-safelisted headers the dashboard sends.
var corsRequestHeaders = []string{
	"Authorization",
	"Content-Type",
	"X-Requested-With",
}

// corsResponseHeaders are exposed to dashboard scripts (exports, pagination).
var corsResponseHeaders = []string{
	"Content-Disposition",
	"X-Request-Id",
	"X-Total-Count",
}

// CORS returns middleware that answers preflight requests and sets the CORS
// response headers for the configured origins. Upstream CORS headers are
// stripped by the forwarder, so these are the only ones a browser sees.
// Install it with Echo#Pre so preflights for unrouted paths are answered too.
func CORS(cfg config.CORSConfig) (echo.MiddlewareFunc, error) {
	mw, err := cors.NewMiddleware(cors.Config{
		Origins:         cfg.Origins,
		Credentialed:    cfg.Credentialed == nil || *cfg.Credentialed,
		Methods:         []string{http.MethodPut, http.MethodPatch, http.MethodDelete},
		RequestHeaders:  corsRequestHeaders,
		MaxAgeInSeconds: cfg.MaxAgeSeconds,
		ResponseHeaders: corsResponseHeaders,
	})
	if err != nil {
		return nil, fmt.Errorf("cors: %w", err)
	}
	return echo.WrapMiddleware(mw.Wrap), nil
}
