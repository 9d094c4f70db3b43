package channel

import (
	"context"
	"io"

	"stickergif/pkg/bus"
)

// Handler processes one inbound event. Adapters call it on its own goroutine.
type Handler func(context.Context, bus.IncomingEvent)

// Adapter bridges one external transport (for example Telegram) into the pipeline.
type Adapter interface {
	Name() string
	Run(context.Context, Handler) error
}

// Delivery sends results back to the chat an event came from.
type Delivery interface {
	SendArtifact(ctx context.Context, origin bus.ChatHandle, path string) error
	SendWarning(ctx context.Context, origin bus.ChatHandle, text string) error
}

// Fetcher downloads a platform file by id.
type Fetcher interface {
	Fetch(ctx context.Context, fileID string, w io.Writer) error
}
