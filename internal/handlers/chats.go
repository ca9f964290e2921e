package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/bellflower/pkg/chat"
	"github.com/Ramsey-B/bellflower/pkg/middleware"
	"github.com/Ramsey-B/bellflower/pkg/models"
	"github.com/Ramsey-B/bellflower/pkg/query"
)

// ChatService is the chat behaviour the handlers need. Implemented by chat.Service.
type ChatService interface {
	Send(ctx context.Context, caller models.Caller, key chat.ChannelKey, body, source string) (*models.ChatMessage, error)
	Messages(ctx context.Context, caller models.Caller, key chat.ChannelKey, req query.Request) (*query.Page[models.ChatMessage], error)
	DeleteMessages(ctx context.Context, caller models.Caller, ids []int64) (int64, error)
	CreateChat(ctx context.Context, caller models.Caller, key chat.ChannelKey) (*models.Chat, error)
	DeleteChat(ctx context.Context, caller models.Caller, key chat.ChannelKey) error
}

// SocketServer runs one live chat connection until it ends.
type SocketServer interface {
	Serve(w http.ResponseWriter, r *http.Request, key chat.ChannelKey, token string) error
}

// ChatHandler serves the chat REST routes and the websocket upgrade route
type ChatHandler struct {
	service ChatService
	sockets SocketServer
	logger  ectologger.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(service ChatService, sockets SocketServer, logger ectologger.Logger) *ChatHandler {
	return &ChatHandler{service: service, sockets: sockets, logger: logger}
}

// Register mounts the REST chat routes. They expect an authenticated caller.
func (h *ChatHandler) Register(g *echo.Group) {
	g.POST("/create_chat", h.createChat)
	g.DELETE("/delete_chat", h.deleteChat)
	g.POST("/send_message", h.sendMessage)
	g.GET("/get_messages", h.getMessages)
	g.DELETE("/delete_messages", h.deleteMessages)
}

// RegisterSocket mounts the websocket route. The token travels in the query string, so the
// route must sit outside the bearer authentication middleware.
func (h *ChatHandler) RegisterSocket(e *echo.Echo) {
	e.GET("/ws/:chat_subject/:subject_uuid", h.socket)
}

type sendMessageRequest struct {
	Msg string `json:"msg"`
}

type deleteMessagesRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1"`
}

// CreateChatResponse is returned by POST /create_chat
type CreateChatResponse struct {
	ChatID int64 `json:"chat_id"`
}

func channelKey(subjectToken, subjectUUID string) (chat.ChannelKey, error) {
	subject, err := models.ParseChatSubject(subjectToken)
	if err != nil {
		return chat.ChannelKey{}, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	subjectUUID = strings.TrimSpace(subjectUUID)
	if subjectUUID == "" {
		return chat.ChannelKey{}, httperror.NewHTTPError(http.StatusBadRequest, "subject_uuid is required")
	}
	return chat.ChannelKey{Subject: subject, SubjectUUID: subjectUUID}, nil
}

func queryChannelKey(c echo.Context) (chat.ChannelKey, error) {
	return channelKey(c.QueryParam("chat_subject"), c.QueryParam("subject_uuid"))
}

func (h *ChatHandler) createChat(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	key, err := queryChannelKey(c)
	if err != nil {
		return err
	}

	created, err := h.service.CreateChat(c.Request().Context(), who, key)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, CreateChatResponse{ChatID: created.ID})
}

func (h *ChatHandler) deleteChat(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	key, err := queryChannelKey(c)
	if err != nil {
		return err
	}

	if err := h.service.DeleteChat(c.Request().Context(), who, key); err != nil {
		return err
	}
	return message(c, "chat deleted")
}

func (h *ChatHandler) sendMessage(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	key, err := queryChannelKey(c)
	if err != nil {
		return err
	}

	var req sendMessageRequest
	if err := middleware.BindRequest(c, &req); err != nil {
		return err
	}

	if _, err := h.service.Send(c.Request().Context(), who, key, req.Msg, chat.SourceREST); err != nil {
		return err
	}
	return message(c, "message sent")
}

func (h *ChatHandler) getMessages(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	key, err := queryChannelKey(c)
	if err != nil {
		return err
	}

	var req query.Request
	if req.Page, err = queryInt(c, "page"); err != nil {
		return err
	}
	if req.PageSize, err = queryInt(c, "page_size"); err != nil {
		return err
	}

	page, err := h.service.Messages(c.Request().Context(), who, key, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (h *ChatHandler) deleteMessages(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}

	var req deleteMessagesRequest
	if err := middleware.BindRequest(c, &req); err != nil {
		return err
	}

	deleted, err := h.service.DeleteMessages(c.Request().Context(), who, req.IDs)
	if err != nil {
		return err
	}

	h.logger.WithContext(c.Request().Context()).Infof("Deleted %d chat messages", deleted)
	return message(c, "messages deleted")
}

// socket hands the connection to the socket server. An unknown subject still upgrades so the
// client sees the policy-violation close instead of a plain HTTP error.
func (h *ChatHandler) socket(c echo.Context) error {
	key := chat.ChannelKey{SubjectUUID: c.Param("subject_uuid")}
	// unknown or non-live subjects still upgrade and are refused with 1008 by the socket server
	if subject, err := models.ParseChatSubject(c.Param("chat_subject")); err == nil && subject.Live() {
		key.Subject = subject
	}

	if err := h.sockets.Serve(c.Response(), c.Request(), key, c.QueryParam("token")); err != nil {
		// the upgrader has already written the HTTP error response
		h.logger.WithContext(c.Request().Context()).WithError(err).Warn("chat socket upgrade failed")
	}
	return nil
}
