package runtime

import (
	"context"
	"errors"

	"github.com/joeblack2k/openclaw-studio-sub002/internal/approval"
)

// RemoteResolver applies decisions through the runtime's resolve RPC. The
// runtime owns policy application and persistence of allow-always rules;
// this side only relays the decision and reports the outcome.
type RemoteResolver struct {
	client *Client
}

// NewRemoteResolver creates a resolver backed by the given client.
func NewRemoteResolver(client *Client) *RemoteResolver {
	return &RemoteResolver{client: client}
}

// Resolve implements approval.Resolver.
func (r *RemoteResolver) Resolve(ctx context.Context, approvalID string, decision approval.Decision, onAllowed func(approval.Approval, string)) error {
	if !decision.Valid() {
		return errors.New("runtime: unsupported decision " + string(decision))
	}

	res, err := r.client.resolve(ctx, approvalID, decision)
	if err != nil {
		return err
	}
	if res.Error != "" {
		return errors.New("runtime: resolve rejected: " + res.Error)
	}
	if !res.Applied {
		return errors.New("runtime: decision not applied")
	}

	if res.Allowed {
		resolved := approval.Approval{ID: approvalID}
		if res.Approval != nil {
			resolved = *res.Approval
		}
		onAllowed(resolved, res.TargetAgentID)
	}
	return nil
}
