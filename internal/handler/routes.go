package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// proxyMethods are the verbs accepted on the forwarding routes.
var proxyMethods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
}

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, proxies *Proxies, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	for prefix, h := range map[string]*ProxyHandler{
		"/api/audit":   proxies.Audit,
		"/api/backend": proxies.Backend,
	} {
		e.Match(proxyMethods, prefix, h.Handle)
		e.Match(proxyMethods, prefix+"/*", h.Handle)
	}
}
