// Package job defines the conversion units executed by dispatcher workers.
//
// The set of jobs is closed: AnimatedSticker, StaticSticker and Symbol. Each
// job carries the chat it was requested from, so a worker never consults
// shared state to decide where a result goes.
package job

import (
	"context"
	"log/slog"

	"stickergif/pkg/bus"
	"stickergif/pkg/cache"
	"stickergif/pkg/logger"

	"github.com/google/uuid"
)

// Kind tags a job variant and keys the dispatcher handler table.
type Kind string

const (
	KindAnimatedSticker Kind = "animated_sticker"
	KindStaticSticker   Kind = "static_sticker"
	KindSymbol          Kind = "symbol"
)

// Kinds lists every job variant.
func Kinds() []Kind {
	return []Kind{KindAnimatedSticker, KindStaticSticker, KindSymbol}
}

// Job is one pending conversion.
type Job interface {
	ID() string
	Kind() Kind
	Key() cache.Key
	Origin() bus.ChatHandle
	Execute(ctx context.Context) Outcome

	sealed()
}

// Outcome is the terminal result of Execute. Path is set on success; Failure on error.
type Outcome struct {
	Path        string
	Placeholder bool
	Failure     FailureKind
	Err         error
}

// OK reports whether the outcome references a deliverable file.
func (o Outcome) OK() bool {
	return o.Failure == "" && o.Path != ""
}

func failed(err error) Outcome {
	return Outcome{Failure: KindOf(err), Err: err}
}

type base struct {
	id     string
	key    cache.Key
	origin bus.ChatHandle
	log    *slog.Logger
}

func newBase(key cache.Key, origin bus.ChatHandle, log *slog.Logger, component string) base {
	id := uuid.NewString()
	return base{
		id:     id,
		key:    key,
		origin: origin,
		log:    logger.Component(log, component).With("job_id", id, "key", string(key), "chat", origin.String()),
	}
}

func (b base) ID() string             { return b.id }
func (b base) Key() cache.Key         { return b.key }
func (b base) Origin() bus.ChatHandle { return b.origin }
func (base) sealed()                  {}
