// Package notify delivers approval requests to human approvers and decodes
// their answers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Notifier pushes an approval notice to approvers. Implementations must be
// safe for concurrent use.
type Notifier interface {
	NotifyApprovers(ctx context.Context, notice domain.ApprovalNotice) error
	Close() error
}

// Nop drops every notice.
type Nop struct{}

func (Nop) NotifyApprovers(context.Context, domain.ApprovalNotice) error { return nil }
func (Nop) Close() error                                                 { return nil }

// Multi fans a notice out to every member concurrently. The first error is
// returned after all members have finished.
type Multi []Notifier

func (m Multi) NotifyApprovers(ctx context.Context, notice domain.ApprovalNotice) error {
	var g errgroup.Group
	for _, n := range m {
		g.Go(func() error {
			return n.NotifyApprovers(ctx, notice)
		})
	}
	return g.Wait()
}

func (m Multi) Close() error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.Close())
	}
	return errors.Join(errs...)
}

// Action is an approver's answer.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// ErrInvalidCallback is returned for callback data that is not
// "<action>_<uuid>".
var ErrInvalidCallback = errors.New("invalid_callback")

// Callback is decoded button data.
type Callback struct {
	Action    Action
	RequestID string
}

// CallbackData encodes the button payload for action on requestID.
func CallbackData(action Action, requestID string) string {
	return string(action) + "_" + requestID
}

// ParseCallback decodes data produced by CallbackData.
func ParseCallback(data string) (Callback, error) {
	action, id, ok := strings.Cut(data, "_")
	if !ok {
		return Callback{}, fmt.Errorf("%w: missing separator", ErrInvalidCallback)
	}

	switch Action(action) {
	case ActionApprove, ActionReject:
	default:
		return Callback{}, fmt.Errorf("%w: unknown action %q", ErrInvalidCallback, action)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return Callback{}, fmt.Errorf("%w: bad request id", ErrInvalidCallback)
	}
	return Callback{Action: Action(action), RequestID: parsed.String()}, nil
}
