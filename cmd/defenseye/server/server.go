package server

import (
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/DefensEye/cmmc12/api"
	"github.com/DefensEye/cmmc12/internal/middleware"
	"github.com/DefensEye/cmmc12/service"
)

func NewGinServer(svc *service.Service, cfg Config) *http.Server {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.AccessLogger(),
		gin.CustomRecovery(service.Recover),
		cors.New(corsConfig(cfg.CORS)),
	)

	api.RegisterHandlersWithOptions(r, svc, api.GinServerOptions{
		ErrorHandler: service.HandleParamError,
	})

	s := &http.Server{
		Handler:           r,
		Addr:              net.JoinHostPort("0.0.0.0", cfg.Port),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// corsConfig allows every origin when none are listed.
func corsConfig(cfg CORSConfig) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-Id"},
		ExposeHeaders: []string{"X-Request-Id"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = cfg.AllowedOrigins
	c.AllowCredentials = true
	return c
}

func SetupTLS(server *http.Server, config Config) (string, string, error) {
	// TODO: Allow loosening here through configuration
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS13}
	server.TLSConfig = tlsConfig

	if config.Certificate.PublicKey == "" {
		return "", "", errors.New("invalid certification configuration: please add certConfig.cert to the configuration")
	}

	if config.Certificate.PrivateKey == "" {
		return "", "", errors.New("invalid certification configuration: please add certConfig.key to the configuration")
	}

	return config.Certificate.PublicKey, config.Certificate.PrivateKey, nil
}
