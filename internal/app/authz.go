package app

import (
	"fmt"

	"github.com/neomorfeo/procura/internal/domain"
)

// RequirePermission fails with an AuthorizationError naming the missing
// capability unless actor holds every bit of required.
func RequirePermission(actor domain.Actor, required domain.Permission, action string) error {
	if actor.Permissions.Has(required) {
		return nil
	}
	return &domain.AuthorizationError{
		ActorID: actor.ID,
		Action:  action,
		Missing: required &^ actor.Permissions,
	}
}

// PreventSelfApproval fails when the reviewer is the submitter, whatever
// permissions the reviewer holds.
func PreventSelfApproval(actorID, submitterID, action string) error {
	if actorID == "" || actorID != submitterID {
		return nil
	}
	return &domain.AuthorizationError{
		ActorID: actorID,
		Action:  action,
		Reason:  fmt.Sprintf("user %s cannot %s their own submission", actorID, action),
	}
}
