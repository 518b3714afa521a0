package control

import (
	"context"

	"go.uber.org/multierr"

	"github.com/vietddude/mpath/internal/mpath"
)

// multiPublisher fans identity updates out to every configured backend. A
// failing backend does not stop the others.
type multiPublisher []mpath.AttrPublisher

var _ mpath.AttrPublisher = multiPublisher(nil)

// newPublisher returns the single backend, a fan-out over several, or a
// no-op when none are configured.
func newPublisher(pubs ...mpath.AttrPublisher) mpath.AttrPublisher {
	switch len(pubs) {
	case 0:
		return mpath.NopPublisher{}
	case 1:
		return pubs[0]
	}
	return multiPublisher(pubs)
}

func (m multiPublisher) Publish(ctx context.Context, id mpath.Identity) error {
	var errs error
	for _, p := range m {
		errs = multierr.Append(errs, p.Publish(ctx, id))
	}
	return errs
}

func (m multiPublisher) Unpublish(ctx context.Context, name string) error {
	var errs error
	for _, p := range m {
		errs = multierr.Append(errs, p.Unpublish(ctx, name))
	}
	return errs
}
