package core

// BlockedKind tags the variant of a Blocked record.
type BlockedKind int

const (
	// BlockedJob means a Job is waiting: resolving wakes the job by
	// clearing its blocker and re-entering change_state.
	BlockedJob BlockedKind = iota
	// BlockedEvent means a nested Event is waiting on its blocker
	// event: resolving propagates the failed flag and unblocks it.
	BlockedEvent
	// BlockedStartReply, BlockedStopReply, BlockedRestartReply carry
	// a control-RPC reply handle (spec §3's "RPC-reply variants").
	BlockedStartReply
	BlockedStopReply
	BlockedRestartReply
	// BlockedEmitReply carries a reply handle for a wait=true emit
	// RPC; Event names the event it is itself waiting on, for
	// EventFailedError.
	BlockedEmitReply
)

// ReplyHandle is satisfied by internal/control's RPC reply channel.
// Defined here, in core, so the core never imports the control
// package — control imports core instead.
type ReplyHandle interface {
	Resolve(err error)
}

// Blocked records "X is waiting on Y". It is linked into exactly one
// list: its blocker's blocking list. It is freed when the blocker
// resolves.
type Blocked struct {
	Kind  BlockedKind
	Job   *Job
	Event *Event
	Reply ReplyHandle
}

// NewJobBlocked creates a Blocked{JOB(job)} record.
func NewJobBlocked(job *Job) *Blocked {
	return &Blocked{Kind: BlockedJob, Job: job}
}

// NewEventBlocked creates a Blocked{EVENT(event)} record.
func NewEventBlocked(event *Event) *Blocked {
	return &Blocked{Kind: BlockedEvent, Event: event}
}

// NewReplyBlocked creates an RPC-reply Blocked record of the given
// kind (BlockedStartReply, BlockedStopReply, or BlockedRestartReply).
func NewReplyBlocked(kind BlockedKind, reply ReplyHandle) *Blocked {
	return &Blocked{Kind: kind, Reply: reply}
}

// NewEmitReplyBlocked creates a Blocked{BlockedEmitReply} record for
// a wait=true emit RPC, parked on ev's own blocking list.
func NewEmitReplyBlocked(ev *Event, reply ReplyHandle) *Blocked {
	return &Blocked{Kind: BlockedEmitReply, Event: ev, Reply: reply}
}

// resolve wakes whatever this record represents. failed reports
// whether the blocker (the event finishing this list) finished with
// its failed flag set; for reply variants this becomes a JobFailed
// error with jobName naming the job that failed.
func (b *Blocked) resolve(core *Core, failed bool, jobName string) {
	switch b.Kind {
	case BlockedJob:
		job := b.Job
		job.blocker = nil
		if failed {
			job.onBlockerFailed(core)
		} else {
			core.resumeJob(job)
		}
	case BlockedEvent:
		if failed {
			b.Event.MarkFailed()
		}
		b.Event.Unblock()
	case BlockedStartReply, BlockedStopReply, BlockedRestartReply:
		if b.Reply == nil {
			return
		}
		if failed {
			b.Reply.Resolve(&JobFailedError{JobName: jobName})
		} else {
			b.Reply.Resolve(nil)
		}
	case BlockedEmitReply:
		if b.Reply == nil {
			return
		}
		if failed {
			b.Reply.Resolve(&EventFailedError{EventName: b.Event.Name})
		} else {
			b.Reply.Resolve(nil)
		}
	}
}
