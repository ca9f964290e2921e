package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/bellflower/pkg/middleware"
	"github.com/Ramsey-B/bellflower/pkg/models"
	"github.com/Ramsey-B/bellflower/pkg/notify"
	"github.com/Ramsey-B/bellflower/pkg/query"
	"github.com/Ramsey-B/bellflower/pkg/repositories"
)

// Notifier creates and delivers notifications. Implemented by notify.Dispatcher.
type Notifier interface {
	Notify(ctx context.Context, in notify.Input) (*notify.Result, error)
}

// NotificationStore is the read and bookkeeping side of the notification table.
type NotificationStore interface {
	List(ctx context.Context, access repositories.NotificationAccess, req query.Request) (*query.Page[models.Notification], error)
	Count(ctx context.Context, access repositories.NotificationAccess, unreadOnly bool, subject *models.NotificationSubject) (int, error)
	MarkRead(ctx context.Context, access repositories.NotificationAccess, uuids []string, now time.Time) (int64, error)
	Delete(ctx context.Context, uuids []string) (int64, error)
}

// NotificationHandler serves the notification routes
type NotificationHandler struct {
	notifier Notifier
	store    NotificationStore
	logger   ectologger.Logger
	now      func() time.Time
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notifier Notifier, store NotificationStore, logger ectologger.Logger) *NotificationHandler {
	return &NotificationHandler{notifier: notifier, store: store, logger: logger, now: time.Now}
}

// Register mounts the notification routes on an authenticated group
func (h *NotificationHandler) Register(g *echo.Group) {
	g.POST("/notify", h.notify)
	g.POST("/get_notifications", h.list)
	g.GET("/get_count_notifications", h.count)
	g.PUT("/read_notifications", h.markRead)
	g.DELETE("/delete_notifications", h.delete)
}

type notifyRequest struct {
	Body string `json:"body"`
}

type idsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

// CountResponse is returned by GET /get_count_notifications
type CountResponse struct {
	Count int `json:"count"`
}

func (h *NotificationHandler) notify(c echo.Context) error {
	ctx := c.Request().Context()

	who, err := caller(c)
	if err != nil {
		return err
	}

	var req notifyRequest
	if err := middleware.BindRequest(c, &req); err != nil {
		return err
	}

	in := notify.Input{
		Caller:        who,
		Body:          req.Body,
		SubjectUUID:   optionalQuery(c, "subject_uuid"),
		RecipientUUID: optionalQuery(c, "recipient_user_uuid"),
	}
	if in.ForAdmin, err = queryBool(c, "for_admin"); err != nil {
		return err
	}
	if in.IsImportant, err = queryBool(c, "is_important"); err != nil {
		return err
	}
	if in.Subject, err = models.ParseNotificationSubject(c.QueryParam("subject")); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if raw := optionalQuery(c, "time_importance_change"); raw != nil {
		at, err := models.ParseTimestamp(*raw)
		if err != nil {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "time_importance_change must match %s", models.TimestampLayout)
		}
		in.ImportanceFlipAt = &at
	}

	result, err := h.notifier.Notify(ctx, in)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"notification_uuid": result.Notification.UUID,
		"subject":           in.Subject.String(),
		"attempts":          len(result.Attempts),
	}).Info("notification created")
	return message(c, "notification created")
}

func (h *NotificationHandler) list(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}

	var req query.Request
	if err := middleware.BindRequest(c, &req); err != nil {
		return err
	}

	page, err := h.store.List(c.Request().Context(), repositories.AccessFor(who, req), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (h *NotificationHandler) count(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}

	unreadOnly, err := queryBool(c, "unread_only")
	if err != nil {
		return err
	}

	var subject *models.NotificationSubject
	if raw := optionalQuery(c, "notification_subject"); raw != nil {
		parsed, err := models.ParseNotificationSubject(*raw)
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		subject = &parsed
	}

	count, err := h.store.Count(c.Request().Context(), repositories.AccessFor(who, query.Request{}), unreadOnly, subject)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, CountResponse{Count: count})
}

func (h *NotificationHandler) markRead(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}

	var req idsRequest
	if err := middleware.BindRequest(c, &req); err != nil {
		return err
	}

	updated, err := h.store.MarkRead(c.Request().Context(), repositories.AccessFor(who, query.Request{}), req.IDs, h.now().UTC())
	if err != nil {
		return err
	}

	h.logger.WithContext(c.Request().Context()).Debugf("Marked %d notifications read", updated)
	return message(c, "notifications marked as read")
}

func (h *NotificationHandler) delete(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	if !who.IsAdmin() {
		return httperror.NewHTTPError(http.StatusForbidden, "only administrators may delete notifications")
	}

	var req idsRequest
	if err := middleware.BindRequest(c, &req); err != nil {
		return err
	}

	deleted, err := h.store.Delete(c.Request().Context(), req.IDs)
	if err != nil {
		return err
	}

	h.logger.WithContext(c.Request().Context()).Infof("Deleted %d notifications", deleted)
	return message(c, "notifications deleted")
}
