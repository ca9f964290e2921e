package chat

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/bellflower/pkg/models"
	"github.com/Ramsey-B/bellflower/pkg/repositories"
)

// OwnershipLookup resolves a chat and its subject's owner in one query.
type OwnershipLookup interface {
	ChatOwner(ctx context.Context, subject models.ChatSubject, subjectUUID string) (*repositories.ChatOwnership, error)
}

// Gate decides whether a caller may use the chat of a subject. It never writes.
type Gate struct {
	owners OwnershipLookup
}

// NewGate creates a gate over the ownership lookup
func NewGate(owners OwnershipLookup) *Gate {
	return &Gate{owners: owners}
}

// Authorize returns the chat id when caller may read and post in the chat of (subject, subjectUUID).
// Admins pass whenever the chat exists. Everyone else must own the subject; a missing chat is
// reported to them as forbidden so chat existence does not leak.
func (g *Gate) Authorize(ctx context.Context, subject models.ChatSubject, subjectUUID string, caller models.Caller) (int64, error) {
	if !subject.IsValid() {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown chat subject %d", subject)
	}
	if subjectUUID == "" {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, "subject_uuid is required")
	}

	ownership, err := g.owners.ChatOwner(ctx, subject, subjectUUID)
	if err != nil {
		if !caller.IsAdmin() && httperror.GetStatusCode(err) == http.StatusNotFound {
			return 0, forbidden(subject, subjectUUID)
		}
		return 0, err
	}

	if caller.IsAdmin() {
		return ownership.ChatID, nil
	}
	if !ownership.OwnerUserID.Valid || ownership.OwnerUserID.Int64 != caller.ID {
		return 0, forbidden(subject, subjectUUID)
	}
	return ownership.ChatID, nil
}

func forbidden(subject models.ChatSubject, subjectUUID string) error {
	return httperror.NewHTTPErrorf(http.StatusForbidden, "no access to the chat of %s %s", subject, subjectUUID)
}
