package dedup

import (
	"context"

	"github.com/roach88/plent/internal/artifact"
	"github.com/roach88/plent/internal/platform"
	"github.com/roach88/plent/internal/registry"
	"github.com/roach88/plent/internal/store"
)

// ThreadLinks resolves the forum thread an origin message was posted in.
type ThreadLinks interface {
	ThreadForMessage(ctx context.Context, message platform.MessageID) (store.ThreadLink, bool, error)
}

// RegistryLocator links stored artifacts to their origin through the
// routing tables. Artifacts stored from forum threads resolve to the
// thread when a link is recorded, otherwise to the forum itself.
type RegistryLocator struct {
	Registry *registry.Registry
	Links    ThreadLinks
}

// Locate implements Locator.
func (l RegistryLocator) Locate(ctx context.Context, repoName, dir string, id artifact.ID) (platform.MessageRef, bool, error) {
	ch, ok := l.Registry.Locate(repoName, dir)
	if !ok {
		return platform.MessageRef{}, false, nil
	}
	ref := platform.MessageRef{
		Guild:   ch.Entry.Repo.Guild,
		Channel: ch.ID,
		Message: platform.MessageID(id),
	}
	if _, forum := l.Registry.Forum(ch.ID); forum && l.Links != nil {
		link, ok, err := l.Links.ThreadForMessage(ctx, ref.Message)
		if err != nil {
			return platform.MessageRef{}, false, err
		}
		if ok {
			ref.Channel = link.Thread
		}
	}
	return ref, true, nil
}
