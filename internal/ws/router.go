package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	errUnknownEvent = errors.New("unknown_event")
	errInvalidBody  = errors.New("invalid_body")
)

// noAck is returned by handlers whose event is not acknowledged on the wire,
// either because the answer travels through the participant's outbox or
// because the event is fire-and-forget.
type noAck struct{}

// invalidReporter lets a request type pick the error sent back when its body
// cannot be decoded or fails validation.
type invalidReporter interface {
	invalidError() error
}

// internal (untyped) handler signature.
type rawHandler func(ctx context.Context, c *ConnContext, body json.RawMessage) (any, error)

// Router keeps a map[event]handler, à‑la gin.Engine.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]rawHandler
	validate *validator.Validate
}

func NewRouter() *Router {
	return &Router{
		handlers: make(map[string]rawHandler),
		validate: validator.New(),
	}
}

// Register binds an event to a strongly‑typed handler. Struct requests are
// checked against their `validate` tags before the handler runs.
func Register[Req any, Res any](
	r *Router,
	event string,
	h func(ctx context.Context, c *ConnContext, req Req) (Res, error),
) {
	if event == "" {
		panic("ws router: empty event")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	validate := r.validate
	r.handlers[event] = func(ctx context.Context, c *ConnContext, body json.RawMessage) (any, error) {
		var req Req
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				return nil, invalid(req, err)
			}
		}
		if err := validate.Struct(req); err != nil {
			var notStruct *validator.InvalidValidationError
			if !errors.As(err, &notStruct) {
				return nil, invalid(req, err)
			}
		}
		return h(ctx, c, req)
	}
}

func invalid(req any, cause error) error {
	base := errInvalidBody
	if ir, ok := req.(invalidReporter); ok {
		base = ir.invalidError()
	}
	return fmt.Errorf("%w: %v", base, cause)
}

// dispatch is called by the server’s reader loop.
func (r *Router) dispatch(ctx context.Context, c *ConnContext, env Envelope) (any, error) {
	r.mu.RLock()
	h, ok := r.handlers[env.Event]
	r.mu.RUnlock()
	if !ok {
		return nil, errUnknownEvent
	}
	return h(ctx, c, env.Body)
}
