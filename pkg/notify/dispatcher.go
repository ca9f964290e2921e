// Package notify creates notifications and fans them out over the external delivery channels.
package notify

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/bellflower/pkg/delivery"
	"github.com/Ramsey-B/bellflower/pkg/metrics"
	"github.com/Ramsey-B/bellflower/pkg/models"
	"github.com/Ramsey-B/bellflower/pkg/tracing"
)

// StatusClientClosedRequest is returned when the caller went away after the record was saved.
const StatusClientClosedRequest = 499

// Defaults applied by NewDispatcher
const (
	DefaultDeliveryTimeout = 10 * time.Second
	DefaultEmailSubject    = "Notification"
)

// NotificationStore persists notifications. Implemented by repositories.NotificationRepository.
type NotificationStore interface {
	Insert(ctx context.Context, n *models.Notification) error
}

// OwnershipLookup resolves the user id that owns an application or legal entity.
type OwnershipLookup interface {
	SubjectOwner(ctx context.Context, subject models.NotificationSubject, subjectUUID string) (int64, error)
}

// ContactResolver looks up a user's delivery contacts. Implemented by repositories.UserRepository.
type ContactResolver interface {
	Contacts(ctx context.Context, userUUID string) (*models.UserContacts, error)
}

// EventEmitter publishes notification events. Implemented by events.Emitter.
type EventEmitter interface {
	EmitNotificationCreated(ctx context.Context, n *models.Notification) error
}

// Input describes one notify call.
type Input struct {
	Caller           models.Caller
	ForAdmin         bool
	Subject          models.NotificationSubject
	SubjectUUID      *string
	Body             string
	RecipientUUID    *string
	IsImportant      bool
	ImportanceFlipAt *time.Time
}

// Result is the saved notification and the outcome of every channel call.
type Result struct {
	Notification *models.Notification
	Attempts     []delivery.Attempt
}

// Config holds dispatcher settings
type Config struct {
	DeliveryTimeout time.Duration
	EmailSubject    string
}

// Dispatcher validates, persists and delivers notifications
type Dispatcher struct {
	store    NotificationStore
	owners   OwnershipLookup
	contacts ContactResolver
	sender   delivery.Delivery
	minter   delivery.IdentifierMinter
	events   EventEmitter
	logger   ectologger.Logger
	cfg      Config
}

// NewDispatcher creates a new dispatcher, applying defaults for zero settings
func NewDispatcher(
	store NotificationStore,
	owners OwnershipLookup,
	contacts ContactResolver,
	sender delivery.Delivery,
	minter delivery.IdentifierMinter,
	events EventEmitter,
	logger ectologger.Logger,
	cfg Config,
) *Dispatcher {
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if cfg.EmailSubject == "" {
		cfg.EmailSubject = DefaultEmailSubject
	}
	return &Dispatcher{
		store:    store,
		owners:   owners,
		contacts: contacts,
		sender:   sender,
		minter:   minter,
		events:   events,
		logger:   logger,
		cfg:      cfg,
	}
}

// Notify validates in, saves the notification and then sends it over every enabled channel.
// The saved record is kept even when a channel fails; the last channel failure is returned
// together with the result once all channels were tried.
func (d *Dispatcher) Notify(ctx context.Context, in Input) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "notify.Dispatcher.Notify")
	defer span.End()

	if err := d.preflight(ctx, in); err != nil {
		metrics.RecordNotification(in.Subject.String(), "rejected")
		return nil, err
	}

	id, err := d.minter.Mint(ctx)
	if err != nil {
		d.logger.WithContext(ctx).WithError(err).Error("failed to mint notification id")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to mint notification id")
	}

	target, err := d.target(ctx, in)
	if err != nil {
		return nil, err
	}

	n := &models.Notification{
		UUID:                 id,
		ForAdmin:             in.ForAdmin,
		Subject:              in.Subject,
		SubjectUUID:          in.SubjectUUID,
		InitiatorUserID:      in.Caller.ID,
		InitiatorUserUUID:    in.Caller.UUID,
		Data:                 in.Body,
		IsImportant:          in.IsImportant,
		TimeImportanceChange: in.ImportanceFlipAt,
	}
	if in.RecipientUUID != nil && target != nil {
		n.RecipientUserID = &target.UserID
		n.RecipientUserUUID = in.RecipientUUID
	}

	if ctx.Err() != nil {
		return nil, httperror.NewHTTPError(StatusClientClosedRequest, "request cancelled")
	}

	if err := d.store.Insert(ctx, n); err != nil {
		tracing.RecordError(span, err)
		metrics.RecordNotification(in.Subject.String(), "failed")
		if httperror.IsHTTPError(err) {
			return nil, err
		}
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create notification")
	}

	if d.events != nil {
		// best effort; the record is already durable
		_ = d.events.EmitNotificationCreated(ctx, n)
	}

	result := &Result{Notification: n}
	result.Attempts = d.fanOut(ctx, n, target)

	if ctx.Err() != nil {
		metrics.RecordNotification(in.Subject.String(), "cancelled")
		d.logger.WithContext(ctx).WithField("notification_uuid", n.UUID).Warn("notify cancelled after the notification was saved")
		return result, httperror.NewHTTPError(StatusClientClosedRequest, "request cancelled")
	}

	if err := lastFailure(result.Attempts); err != nil {
		tracing.RecordError(span, err)
		metrics.RecordNotification(in.Subject.String(), "partial")
		d.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"notification_uuid": n.UUID,
			"attempts":          len(result.Attempts),
		}).Warn("notification saved but delivery failed")
		return result, deliveryHTTPError(err)
	}

	metrics.RecordNotification(in.Subject.String(), "ok")
	d.logger.WithContext(ctx).WithFields(map[string]any{
		"notification_uuid": n.UUID,
		"attempts":          len(result.Attempts),
	}).Info("notification dispatched")
	return result, nil
}

func (d *Dispatcher) preflight(ctx context.Context, in Input) error {
	if !in.Subject.IsValid() {
		return httperror.NewHTTPError(http.StatusBadRequest, "unknown notification subject")
	}
	if in.Subject == models.NotificationSubjectOther && in.SubjectUUID != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "subject_uuid must be empty for subject Other")
	}
	if in.Subject != models.NotificationSubjectOther && (in.SubjectUUID == nil || *in.SubjectUUID == "") {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "subject_uuid is required for subject %s", in.Subject)
	}
	if !models.ValidBody(in.Body, models.MaxNotificationBodyLength) {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "notification body must be between 1 and %d characters", models.MaxNotificationBodyLength)
	}

	if in.Caller.IsAdmin() {
		return nil
	}
	if in.RecipientUUID != nil {
		return httperror.NewHTTPError(http.StatusForbidden, "only administrators may address a recipient")
	}
	if !in.Subject.RequiresOwnership() {
		return nil
	}

	ownerID, err := d.owners.SubjectOwner(ctx, in.Subject, *in.SubjectUUID)
	if err != nil {
		return err
	}
	if ownerID != in.Caller.ID {
		return httperror.NewHTTPErrorf(http.StatusForbidden, "%s %s does not belong to the caller", in.Subject, *in.SubjectUUID)
	}
	return nil
}

// target resolves whose contacts receive the external copies: the recipient when one is
// addressed, otherwise the initiator. An unknown recipient fails; an initiator without
// contacts only loses the external copies.
func (d *Dispatcher) target(ctx context.Context, in Input) (*models.UserContacts, error) {
	if in.RecipientUUID != nil {
		contacts, err := d.contacts.Contacts(ctx, *in.RecipientUUID)
		if err != nil {
			return nil, err
		}
		return contacts, nil
	}

	contacts, err := d.contacts.Contacts(ctx, in.Caller.UUID)
	if err != nil {
		d.logger.WithContext(ctx).WithError(err).WithField("user_uuid", in.Caller.UUID).Warn("could not resolve initiator contacts, skipping external delivery")
		return nil, nil
	}
	return contacts, nil
}

type send struct {
	channel delivery.Channel
	call    func(ctx context.Context) error
}

func (d *Dispatcher) plan(n *models.Notification, target *models.UserContacts) []send {
	if target == nil || d.sender == nil {
		return nil
	}

	var sends []send
	if email := target.EmailAddress(); email != "" {
		sends = append(sends, send{channel: delivery.ChannelEmail, call: func(ctx context.Context) error {
			return d.sender.SendEmail(ctx, []string{email}, d.cfg.EmailSubject, n.Data)
		}})
	}
	if handle := target.TelegramHandle(); handle != "" {
		sends = append(sends, send{channel: delivery.ChannelMessenger, call: func(ctx context.Context) error {
			return d.sender.SendMessenger(ctx, handle, n.Data)
		}})
	}
	return sends
}

// fanOut calls every planned channel in turn with its own timeout and never stops early on failure.
func (d *Dispatcher) fanOut(ctx context.Context, n *models.Notification, target *models.UserContacts) []delivery.Attempt {
	sends := d.plan(n, target)
	attempts := make([]delivery.Attempt, 0, len(sends))

	for _, s := range sends {
		if ctx.Err() != nil {
			break
		}

		callCtx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
		err := s.call(callCtx)
		cancel()

		attempts = append(attempts, delivery.Attempt{Channel: s.channel, Err: err})
		if err != nil {
			d.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"notification_uuid": n.UUID,
				"channel":           s.channel,
				"kind":              delivery.KindOf(err),
			}).Warn("delivery attempt failed")
		}
	}
	return attempts
}

func lastFailure(attempts []delivery.Attempt) error {
	failed := ectolinq.Filter(attempts, func(a delivery.Attempt) bool {
		return !a.Succeeded()
	})
	if len(failed) == 0 {
		return nil
	}
	return failed[len(failed)-1].Err
}

func deliveryHTTPError(err error) error {
	var de *delivery.Error
	if !errors.As(err, &de) {
		return httperror.NewHTTPError(http.StatusBadGateway, "notification saved but delivery failed")
	}

	switch de.Kind {
	case delivery.KindRejected:
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "notification saved but %s delivery was rejected", de.Channel)
	case delivery.KindDisabled:
		return httperror.NewHTTPErrorf(http.StatusConflict, "notification saved but the recipient disabled %s delivery", de.Channel)
	default:
		return httperror.NewHTTPErrorf(http.StatusBadGateway, "notification saved but %s delivery failed, retry later", de.Channel)
	}
}
