package control

import "github.com/initcore/initd/internal/core"

// chanReply adapts a Go channel to core.ReplyHandle for a single
// wait=true RPC: Resolve is called at most once, from the Core's own
// goroutine, and the HTTP handler receives the result on done.
type chanReply struct {
	done chan error
}

func newChanReply() *chanReply {
	return &chanReply{done: make(chan error, 1)}
}

func (r *chanReply) Resolve(err error) {
	r.done <- err
}

var _ core.ReplyHandle = (*chanReply)(nil)
