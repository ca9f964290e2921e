package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/gorilla/websocket"

	"github.com/Ramsey-B/bellflower/pkg/models"
)

// Socket defaults applied by NewSocketHandler
const (
	DefaultIdleTimeout  = 300 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultMaxFrameSize = 16 * 1024
	closeGracePeriod    = time.Second
)

// Authenticator turns a socket token into a caller.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.Caller, error)
}

// SocketConfig holds websocket limits and timeouts
type SocketConfig struct {
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
	MaxFrameSize int64
	// CheckOrigin overrides the upgrader's same-origin check. Nil allows any origin.
	CheckOrigin func(r *http.Request) bool
}

// SocketHandler serves the live chat socket of one subject.
type SocketHandler struct {
	service  *Service
	auth     Authenticator
	upgrader websocket.Upgrader
	cfg      SocketConfig
	logger   ectologger.Logger
}

// NewSocketHandler creates a socket handler, applying defaults for zero settings
func NewSocketHandler(service *Service, auth Authenticator, cfg SocketConfig, logger ectologger.Logger) *SocketHandler {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = DefaultMaxFrameSize
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &SocketHandler{
		service: service,
		auth:    auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		cfg:    cfg,
		logger: logger,
	}
}

// Serve upgrades the request, then authenticates and authorizes the caller. A refused caller
// gets close code 1008 and is never attached to the registry.
func (h *SocketHandler) Serve(w http.ResponseWriter, r *http.Request, key ChannelKey, token string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := r.Context()
	logger := h.logger.WithContext(ctx).WithFields(map[string]any{
		"chat_subject": key.Subject.String(),
		"subject_uuid": key.SubjectUUID,
	})

	caller, err := h.auth.Authenticate(ctx, token)
	if err != nil {
		logger.WithError(err).Info("chat socket refused: authentication failed")
		h.refuse(conn, "authentication failed")
		return nil
	}
	if _, err := h.service.Authorize(ctx, key, caller); err != nil {
		logger.WithError(err).WithField("user_uuid", caller.UUID).Info("chat socket refused: not authorized")
		h.refuse(conn, "not authorized")
		return nil
	}

	sub := h.service.Registry().NewSubscriber(key, caller)
	if err := h.service.Registry().Attach(sub); err != nil {
		h.closeWith(conn, websocket.CloseGoingAway, "server shutting down")
		return nil
	}
	defer func() {
		h.service.Registry().Detach(sub)
		sub.Close()
	}()

	logger.WithField("user_uuid", caller.UUID).Debug("chat socket attached")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(conn, sub)
	}()

	h.readPump(context.WithoutCancel(ctx), conn, sub)

	sub.Close()
	<-writerDone
	return nil
}

func (h *SocketHandler) refuse(conn *websocket.Conn, reason string) {
	h.closeWith(conn, websocket.ClosePolicyViolation, reason)
}

func (h *SocketHandler) closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
}

// readPump handles inbound frames until the client leaves, the idle timeout passes or the
// subscriber is closed by the registry.
func (h *SocketHandler) readPump(ctx context.Context, conn *websocket.Conn, sub *Subscriber) {
	conn.SetReadLimit(h.cfg.MaxFrameSize)

	// unblock ReadMessage once the registry evicts or drains this subscriber
	go func() {
		<-sub.Done()
		_ = conn.SetReadDeadline(time.Now())
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout)); err != nil {
			return
		}
		// an eviction during the previous Send may have had its deadline overwritten above
		if sub.Closed() {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !sub.Closed() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.WithContext(ctx).WithError(err).Debug("chat socket read ended")
			}
			return
		}

		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			h.reply(sub, "frame must be a JSON object with a msg field")
			continue
		}

		_, err = h.service.Send(ctx, sub.Caller(), sub.Key(), in.Msg, SourceSocket)
		if err == nil {
			continue
		}
		switch status := httperror.GetStatusCode(err); {
		case status == http.StatusForbidden || status == http.StatusNotFound:
			h.refuse(conn, "not authorized")
			return
		case status >= 400 && status < 500:
			h.reply(sub, httperror.ToHTTPError(err).Error())
		default:
			h.logger.WithContext(ctx).WithError(err).Error("failed to publish chat message from socket")
			h.reply(sub, "message could not be saved")
		}
	}
}

func (h *SocketHandler) reply(sub *Subscriber, msg string) {
	frame, err := json.Marshal(errorFrame{Error: msg})
	if err != nil {
		return
	}
	sub.TryEnqueue(frame)
}

// writePump writes queued frames in order. When the subscriber closes it sends a normal close.
func (h *SocketHandler) writePump(conn *websocket.Conn, sub *Subscriber) {
	for {
		select {
		case frame := <-sub.Out():
			if err := conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				sub.Close()
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					h.logger.WithError(err).Debug("chat socket write failed")
				}
				sub.Close()
				return
			}
		case <-sub.Done():
			h.closeWith(conn, websocket.CloseNormalClosure, "")
			return
		}
	}
}
