package broker

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/botlabs-gg/gwrelay/lib/gwrelay"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024 * 16,
}

// Start starts accepting worker connections on the address
// IMPORTANT: there's no authentication, do not expose this to the outer internet
func (b *Broker) Start(listenAddr string) error {
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return errors.WithMessage(err, "net.Listen")
	}

	b.mu.Lock()
	b.httpServer = &http.Server{Handler: b}
	srv := b.httpServer
	b.mu.Unlock()

	logger.Infof("listening for worker connections on %s", listener.Addr())
	go func() {
		err := srv.Serve(listener)
		if err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("failed serving worker connections")
		}
	}()

	return nil
}

// Stop stops accepting new worker connections, existing connections are left alone
func (b *Broker) Stop() {
	b.mu.Lock()
	srv := b.httpServer
	b.mu.Unlock()

	if srv == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	srv.Shutdown(ctx)
}

// ServeHTTP upgrades the request to a worker connection and reads from it until it's closed
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Error("failed upgrading worker connection")
		return
	}

	conn := gwrelay.ConnFromWebsocket(wsConn, r.RemoteAddr)
	logger.WithField("conn", conn.GetID()).Infof("new websocket connection from %s", r.RemoteAddr)

	conn.MessageHandler = func(msg *gwrelay.Message) {
		b.HandleMessage(conn, msg)
	}
	conn.ConnClosedHandler = func(closeCode int) {
		b.HandleConnClosed(conn)
	}

	conn.Listen()
}
