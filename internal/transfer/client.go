package transfer

import "context"

// Item is one transfer as reported by the client, with the raw state already
// parsed into the closed enum.
type Item struct {
	Handle     string
	Name       string
	State      State
	RawState   string
	Progress   float64
	SizeBytes  int64
	DoneBytes  int64
	UploadedTo int64
	SavePath   string
}

// EnqueueRequest describes a new transfer to hand to the client.
type EnqueueRequest struct {
	SourceURL string
	SavePath  string
	Paused    bool
}

// Client is the surface the control loops use to observe and steer the
// transfer client.
type Client interface {
	// Login establishes a session. Implementations may re-login lazily when
	// a session expires.
	Login(ctx context.Context) error
	// ListItems returns all transfers the client currently manages.
	ListItems(ctx context.Context) ([]Item, error)
	// Enqueue submits a new transfer and returns once the client accepts it.
	Enqueue(ctx context.Context, req EnqueueRequest) error
	// Pause halts the given transfers.
	Pause(ctx context.Context, handles ...string) error
	// Resume restarts paused transfers.
	Resume(ctx context.Context, handles ...string) error
	// ForceResume restarts transfers ignoring queue and share limits, the
	// remedy for stalled or errored items.
	ForceResume(ctx context.Context, handles ...string) error
	// SetSeedSlotLimit caps how many transfers may upload concurrently.
	SetSeedSlotLimit(ctx context.Context, limit int) error
}
