// Package ai adapts external large-language-model providers to a single
// chat-completion contract used by the analyzers.
package ai

import (
	"context"
)

// Request is one system+user exchange that must be answered with a single
// JSON object.
type Request struct {
	// Operation labels metrics and spans, e.g. "fit_review".
	Operation string
	System    string
	User      string
}

// Response carries the raw message content and the model that produced it.
type Response struct {
	Content string
	Model   string
}

// Completer sends a request to a model.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (Response, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Middleware decorates a Completer.
type Middleware func(Completer) Completer

// Chain applies middlewares so that the first one listed is the outermost.
func Chain(c Completer, mws ...Middleware) Completer {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			c = mws[i](c)
		}
	}
	return c
}
