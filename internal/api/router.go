// Package api exposes the seatwatch commands over HTTP.
package api

import (
	"net/http"
	"seatwatch-backend/internal/seatwatch"

	"github.com/gin-gonic/gin"
)

type Options struct {
	// AccessToken is required as a bearer token on every /v1 route, an
	// empty token disables the check.
	AccessToken string
}

func NewRouter(service *seatwatch.Service, opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), logRequests())

	router.GET("/health", func(c *gin.Context) {
		success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	h := handlers{service: service}
	v1 := router.Group("/v1")
	v1.Use(requireToken(opts.AccessToken), actorFromHeaders())
	{
		tenants := v1.Group("/tenants/:tenant")
		tenants.PUT("/destination", h.setDestination)
		tenants.GET("/watches", h.listWatches)
		tenants.POST("/watches", h.addWatch)
		tenants.DELETE("/watches/:section", h.removeWatch)
		tenants.DELETE("/watches/:section/subscribers/:subscriber", h.unsubscribe)

		v1.GET("/session", h.sessionStatus)
		v1.POST("/session/refresh", h.forceRefresh)
		v1.POST("/poll", h.pollNow)
		v1.GET("/seats", h.querySeats)
		v1.GET("/sections", h.sections)
	}
	return router
}
