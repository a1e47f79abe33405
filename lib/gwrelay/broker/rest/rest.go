// Package rest serves the status of a broker over http and provides a client for it
package rest

import (
	"net/http"

	"github.com/botlabs-gg/gwrelay/lib/gwrelay/broker"
	"github.com/gin-gonic/gin"
)

type RESTAPI struct {
	broker     *broker.Broker
	listenAddr string

	g *gin.Engine
}

func NewRESTAPI(b *broker.Broker, listenAddr string) *RESTAPI {
	ra := &RESTAPI{
		broker:     b,
		listenAddr: listenAddr,
		g:          gin.Default(),
	}

	ra.setupRoutes()
	return ra
}

// Run serves the api on the listen address, blocking
func (ra *RESTAPI) Run() error {
	return ra.g.Run(ra.listenAddr)
}

// Handler returns the http handler serving the api
func (ra *RESTAPI) Handler() http.Handler {
	return ra.g
}

func (ra *RESTAPI) setupRoutes() {
	ra.g.GET("/status", ra.handleGETStatus)
	ra.g.POST("/disconnectslot", ra.handlePOSTDisconnectSlot)
}
