package world

import (
	"context"
	"fmt"
	"time"

	"github.com/MoniVibe/PureDOTS-sub002/internal/persistence/snapshot"
)

type controlOp int

const (
	opPause controlOp = iota + 1
	opResumeClock
	opSpeed
	opRewind
	opScrub
	opPlayback
	opResume
	opSnapshot
)

type controlReq struct {
	op    controlOp
	tick  uint64
	speed float64
	resp  chan controlResp
}

type controlResp struct {
	err  error
	snap snapshot.SnapshotV1
}

// Run drives the world in real time until ctx is done or Stop is called.
// Wall time is converted to ticks by the clock, so pause and speed apply.
// Everything else talks to a running world through Submit and Control.
func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.Tuning.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending []Input
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case in := <-w.inbox:
			pending = append(pending, in)
		case req := <-w.control:
			req.resp <- w.handleControl(req)
			w.refreshMetrics()
		case now := <-ticker.C:
			for _, in := range pending {
				if _, err := w.Apply(in); err != nil {
					w.log.Printf("tick %d: input %s rejected: %v", w.clock.Tick(), in.Kind, err)
				}
			}
			pending = pending[:0]
			n := w.clock.Accumulate(now.Sub(last).Seconds())
			last = now
			for i := 0; i < n; i++ {
				w.stepInternal()
			}
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// Submit queues an input for the next tick of a running world. It reports
// false when the inbox is full.
func (w *World) Submit(in Input) bool {
	select {
	case w.inbox <- in:
		return true
	default:
		return false
	}
}

func (w *World) handleControl(req controlReq) controlResp {
	switch req.op {
	case opPause:
		w.SetPaused(true)
	case opResumeClock:
		w.SetPaused(false)
	case opSpeed:
		w.SetSpeed(req.speed)
	case opRewind:
		return controlResp{err: w.RewindTo(req.tick)}
	case opScrub:
		return controlResp{err: w.Scrub(req.tick)}
	case opPlayback:
		return controlResp{err: w.Playback(req.tick)}
	case opResume:
		w.Resume()
	case opSnapshot:
		return controlResp{snap: w.ExportSnapshot()}
	default:
		return controlResp{err: fmt.Errorf("unknown control op %d", req.op)}
	}
	return controlResp{}
}

func (w *World) call(ctx context.Context, req controlReq) (controlResp, error) {
	req.resp = make(chan controlResp, 1)
	select {
	case w.control <- req:
	case <-ctx.Done():
		return controlResp{}, ctx.Err()
	}
	select {
	case r := <-req.resp:
		return r, r.err
	case <-ctx.Done():
		return controlResp{}, ctx.Err()
	}
}

// Control methods for a running world. They block until the loop has
// handled the request.
func (w *World) RequestPause(ctx context.Context, paused bool) error {
	op := opResumeClock
	if paused {
		op = opPause
	}
	_, err := w.call(ctx, controlReq{op: op})
	return err
}

func (w *World) RequestSpeed(ctx context.Context, speed float64) error {
	_, err := w.call(ctx, controlReq{op: opSpeed, speed: speed})
	return err
}

func (w *World) RequestRewind(ctx context.Context, tick uint64) error {
	_, err := w.call(ctx, controlReq{op: opRewind, tick: tick})
	return err
}

func (w *World) RequestScrub(ctx context.Context, tick uint64) error {
	_, err := w.call(ctx, controlReq{op: opScrub, tick: tick})
	return err
}

func (w *World) RequestPlayback(ctx context.Context, tick uint64) error {
	_, err := w.call(ctx, controlReq{op: opPlayback, tick: tick})
	return err
}

func (w *World) RequestResume(ctx context.Context) error {
	_, err := w.call(ctx, controlReq{op: opResume})
	return err
}

func (w *World) RequestSnapshot(ctx context.Context) (snapshot.SnapshotV1, error) {
	r, err := w.call(ctx, controlReq{op: opSnapshot})
	return r.snap, err
}

// StepOnce advances the world by a single tick using the same ordering
// semantics as Run. It returns the tick that ran and the resulting digest.
func (w *World) StepOnce() (tick uint64, digest string) {
	tick = w.clock.Tick()
	w.stepInternal()
	return tick, w.lastDigest
}

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.cfg.Tuning.TickRateHz
}
