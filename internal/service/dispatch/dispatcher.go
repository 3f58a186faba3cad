// Package dispatch fans a prompt out to chatbot targets and aggregates the
// per-target results into one ordered bundle.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/chatbot-aggregator/backend/internal/model/chatbot"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/model/prompt"
	sessionModel "github.com/zhouzirui/chatbot-aggregator/backend/internal/model/session"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/service/adapter"
	"github.com/zhouzirui/chatbot-aggregator/backend/internal/service/metrics"
)

// Sessions hands out sessions per target.
type Sessions interface {
	Get(ctx context.Context, target chatbot.Target) (sessionModel.Session, error)
	Invalidate(id string) bool
}

// Adapters looks up the adapter for a target kind.
type Adapters interface {
	For(kind chatbot.Kind) (adapter.Adapter, error)
}

// Config bounds a dispatch.
type Config struct {
	GlobalTimeout time.Duration
	CallTimeout   time.Duration
}

// Dispatcher sends one prompt to many chatbots concurrently.
type Dispatcher struct {
	registry chatbot.Store
	sessions Sessions
	adapters Adapters
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics.Recorder
	now      func() time.Time
}

// New creates a dispatcher. rec may be nil.
func New(registry chatbot.Store, sessions Sessions, adapters Adapters, cfg Config, logger *zap.Logger, rec *metrics.Recorder) *Dispatcher {
	if cfg.GlobalTimeout <= 0 {
		cfg.GlobalTimeout = 60 * time.Second
	}
	if cfg.CallTimeout <= 0 || cfg.CallTimeout > cfg.GlobalTimeout {
		cfg.CallTimeout = cfg.GlobalTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry: registry,
		sessions: sessions,
		adapters: adapters,
		cfg:      cfg,
		logger:   logger.Named("dispatch"),
		metrics:  rec,
		now:      time.Now,
	}
}

// Dispatch sends req to every requested chatbot and returns one result per
// id in request order. Only malformed requests fail the call.
func (d *Dispatcher) Dispatch(ctx context.Context, req prompt.Request) (prompt.Bundle, error) {
	return d.DispatchObserved(ctx, req, nil)
}

// DispatchObserved behaves like Dispatch and reports each result to observe
// as soon as it is final. observe runs on the caller's goroutine.
func (d *Dispatcher) DispatchObserved(ctx context.Context, req prompt.Request, observe Observer) (prompt.Bundle, error) {
	req, err := req.Normalize()
	if err != nil {
		return prompt.Bundle{}, err
	}

	d.metrics.ObserveDispatch()
	started := d.now()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.GlobalTimeout)
	defer cancel()

	slots := make([]Slot, len(req.Chatbots))
	results := make(chan Outcome, len(req.Chatbots))

	for i, id := range req.Chatbots {
		target, err := d.registry.Resolve(id)
		if err != nil {
			slots[i] = Slot{ID: id, Name: id, Started: started}
			results <- Outcome{Index: i, Result: prompt.Failure(id, id, prompt.ReasonUnknownTarget, "", d.now(), 0)}
			continue
		}

		slots[i] = Slot{ID: target.ID, Name: target.Name, Started: started}
		if !target.Enabled {
			results <- Outcome{Index: i, Result: prompt.Failure(target.ID, target.Name, prompt.ReasonDisabled, "", d.now(), 0)}
			continue
		}

		go d.run(ctx, i, target, req.Prompt, results)
	}

	bundle := prompt.Bundle{
		Results: Collect(ctx, slots, results, observe, d.now),
	}
	bundle.Timestamp = d.now().UnixMilli()

	d.logger.Info("dispatch finished",
		zap.Int("targets", len(bundle.Results)),
		zap.Int("success", bundle.Count(prompt.StatusSuccess)),
		zap.Int("error", bundle.Count(prompt.StatusError)),
		zap.Int("timeout", bundle.Count(prompt.StatusTimeout)),
		zap.Duration("took", d.now().Sub(started)))
	return bundle, nil
}

func (d *Dispatcher) run(ctx context.Context, index int, target chatbot.Target, text string, results chan<- Outcome) {
	started := d.now()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("target worker panicked", zap.String("target", target.ID), zap.Any("panic", r))
			results <- Outcome{Index: index, Result: prompt.Failure(target.ID, target.Name, prompt.ReasonAdapter,
				fmt.Sprintf("%s: panic: %v", adapter.KindInternal, r), d.now(), d.now().Sub(started))}
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()

	res := d.call(callCtx, target, text, started)
	d.metrics.ObserveResult(target.ID, string(res.Status), time.Duration(res.DurationMS)*time.Millisecond)

	// Buffered to the target count: never blocks, even after Collect returned.
	results <- Outcome{Index: index, Result: res}
}

func (d *Dispatcher) call(ctx context.Context, target chatbot.Target, text string, started time.Time) prompt.Result {
	log := d.logger.With(zap.String("target", target.ID))

	a, err := d.adapters.For(target.Kind)
	if err != nil {
		return prompt.Failure(target.ID, target.Name, prompt.ReasonAdapter, err.Error(), d.now(), d.now().Sub(started))
	}

	sess, err := d.sessions.Get(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			return d.expired(ctx, target, started)
		}
		log.Warn("session unavailable", zap.Error(err))
		return prompt.Failure(target.ID, target.Name, prompt.ReasonSession, err.Error(), d.now(), d.now().Sub(started))
	}

	reply, err := send(ctx, a, text, sess)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return d.expired(ctx, target, started)
		}

		var adapterErr *adapter.Error
		if errors.As(err, &adapterErr) && adapterErr.Kind == adapter.KindAuth {
			d.sessions.Invalidate(target.ID)
		}
		log.Warn("send failed", zap.Error(err))
		return prompt.Failure(target.ID, target.Name, prompt.ReasonAdapter, err.Error(), d.now(), d.now().Sub(started))
	}

	took := d.now().Sub(started)
	log.Debug("reply received", zap.Duration("took", took))
	return prompt.Success(target.ID, target.Name, reply, d.now(), took)
}

func (d *Dispatcher) expired(ctx context.Context, target chatbot.Target, started time.Time) prompt.Result {
	return expired(ctx.Err(), Slot{ID: target.ID, Name: target.Name, Started: started}, d.now())
}

// send runs the adapter call on its own goroutine so a call that ignores its
// context is abandoned once the deadline passes.
func send(ctx context.Context, a adapter.Adapter, text string, sess sessionModel.Session) (string, error) {
	type reply struct {
		text string
		err  error
	}
	ch := make(chan reply, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- reply{err: adapter.Errorf(adapter.KindInternal, "panic: %v", r)}
			}
		}()
		out, err := a.Send(ctx, text, sess)
		ch <- reply{text: out, err: adapter.Classify(err)}
	}()

	select {
	case r := <-ch:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
