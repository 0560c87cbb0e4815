package server

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/yhaddad/go-relay/internal/server/middleware"
	"github.com/yhaddad/go-relay/pkg/transport"
)

// gatewayMux builds the WebSocket gateway: the same framed payloads ride
// WebSocket binary messages, and a session token from a prior login stands
// in for the login handshake.
func (a *App) gatewayMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws",
		middleware.Chain(http.HandlerFunc(a.upgradeHandler),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(a.logger),
			middleware.NewConnectionLimiter(a.logger, a.router.ConnCount, a.config.Server.ConnectionLimit),
			middleware.NewAuthMiddleware(a.logger, a.tokens),
		),
	)
	return mux
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.Int64("userID", reqMeta.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	// NetConn adapts the socket to the same byte-stream framing the TCP
	// listener speaks.
	stream := websocket.NetConn(a.ctx, wsConn, websocket.MessageBinary)

	conn := transport.NewConnection(
		a.ctx,
		&a.wg,
		stream,
		transport.ConnectionConfig{
			ReadTimeout:  a.config.Transport.ReadTimeout,
			WriteTimeout: a.config.Transport.WriteTimeout,
			SendTimeout:  a.config.Transport.SendTimeout,
			MaxFrameSize: a.config.Transport.MaxFrameSize,
		},
		a.router.HandleMessage,
		nil,
		a.logger,
	)
	a.router.RegisterConn(conn)
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		connLogger.Info("Deregistering connection due to closure", slog.String("connID", id.String()))
		a.router.DeregisterConn(id)
	})

	// The token already authenticated this user; bind the session now so
	// the connection skips the login handshake.
	if err := a.router.BindVerifiedUser(conn, reqMeta.UserID); err != nil {
		connLogger.Error("Failed to bind verified user", slog.Any("error", err))
		conn.Close(err)
		return
	}

	connLogger.Info("User connection fully established")
	conn.Run()
	<-conn.Done()
}
