// Package evaluator turns row changes into notification intents, one evaluator
// per table. Evaluators are pure over (op, before, after) except where they read
// parent entities from the store or apply an idempotent side effect.
package evaluator

import (
	"errors"
	"fmt"

	"github.com/juju/clock"

	"github.com/chihqiang/dbxnotify/datastore"
	"github.com/chihqiang/dbxnotify/pkg/logx"
	"github.com/chihqiang/dbxnotify/router"
	"github.com/chihqiang/dbxnotify/types"
)

// Deps are the collaborators shared by all evaluators.
type Deps struct {
	Store  datastore.Store
	Clock  clock.Clock
	Logger logx.ILogger
}

type evaluators struct {
	store  datastore.Store
	clock  clock.Clock
	logger logx.ILogger
}

// Routes returns the table registry. Tables absent from it are not evaluated.
func Routes(deps Deps) router.Routes {
	e := &evaluators{store: deps.Store, clock: deps.Clock, logger: deps.Logger}
	if e.clock == nil {
		e.clock = clock.WallClock
	}
	if e.logger == nil {
		e.logger = logx.Discard()
	}
	e.logger = e.logger.Named("evaluator")
	return router.Routes{
		types.TablePost:           router.Typed(e.post),
		types.TableComment:        router.Typed(e.comment),
		types.TableUserPost:       router.Typed(e.userPost),
		types.TableUserComment:    router.Typed(e.userComment),
		types.TablePostReport:     router.Typed(e.postReport),
		types.TableCommentReport:  router.Typed(e.commentReport),
		types.TableSourceRequest:  router.Typed(e.sourceRequest),
		types.TableSourceMember:   router.Typed(e.sourceMember),
		types.TableSource:         router.Typed(e.source),
		types.TableUser:           router.Typed(e.user),
		types.TableSubmission:     router.Typed(e.submission),
		types.TableCommentMention: router.Typed(e.commentMention),
		types.TableFeature:        router.Typed(e.feature),
		types.TableUserStreak:     router.Typed(e.userStreak),
		types.TableUserCompany:    router.Typed(e.userCompany),
	}
}

// skipMissing turns a missing parent into "nothing to notify".
func (e *evaluators) skipMissing(err error, kind, id string) ([]types.Intent, error) {
	if errors.Is(err, datastore.ErrNotFound) {
		e.logger.Info("%s %s not found, skipping", kind, id)
		return nil, nil
	}
	return nil, fmt.Errorf("load %s %s: %w", kind, id, err)
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// rose reports a false→true transition. A missing before proves nothing.
func rose(before *bool, after bool) bool {
	return before != nil && !*before && after
}

func one(tag types.DomainEventTag, ctx any) []types.Intent {
	return []types.Intent{types.NewIntent(tag, ctx)}
}
