package engine

import "github.com/rs/zerolog"

// Options tunes New. Zero values are valid.
type Options struct {
	// ReminderDays is the reminder lead time of generated installments.
	ReminderDays int

	// Dispatcher receives payment completions. Nil runs commission
	// generation in-process on an AsyncDispatcher.
	Dispatcher CommissionDispatcher

	// Today overrides the clock (tests).
	Today func() Date

	Log zerolog.Logger
}

// Engine wires every component to one Store.
type Engine struct {
	Store       Store
	Resolver    *RateResolver
	Reconciler  *ScheduleReconciler
	Commissions *CommissionGenerator
	Renewals    *RenewalProcessor
	Policies    *PolicyService
	Payments    *PaymentService
	Rules       *RuleService
	Dispatcher  CommissionDispatcher
}

func New(store Store, opts Options) *Engine {
	log := opts.Log
	resolver := &RateResolver{Rules: store}
	reconciler := &ScheduleReconciler{
		Store:        store,
		ReminderDays: opts.ReminderDays,
		Log:          log.With().Str("component", "schedule").Logger(),
	}
	commissions := &CommissionGenerator{
		Store:    store,
		Resolver: resolver,
		Today:    opts.Today,
		Log:      log.With().Str("component", "commission").Logger(),
	}

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = &AsyncDispatcher{Generator: commissions, Log: log}
	}

	return &Engine{
		Store:       store,
		Resolver:    resolver,
		Reconciler:  reconciler,
		Commissions: commissions,
		Renewals: &RenewalProcessor{
			Store: store,
			Today: opts.Today,
			Log:   log.With().Str("component", "renewal").Logger(),
		},
		Policies: &PolicyService{
			Store:      store,
			Reconciler: reconciler,
			Today:      opts.Today,
			Log:        log.With().Str("component", "policy").Logger(),
		},
		Payments: &PaymentService{
			Store:      store,
			Dispatcher: dispatcher,
			Today:      opts.Today,
			Log:        log.With().Str("component", "payment").Logger(),
		},
		Rules: &RuleService{
			Store:    store,
			Resolver: resolver,
			Log:      log.With().Str("component", "rules").Logger(),
		},
		Dispatcher: dispatcher,
	}
}

// Wait blocks until in-process commission generation has drained.
func (e *Engine) Wait() {
	if d, ok := e.Dispatcher.(*AsyncDispatcher); ok {
		d.Wait()
	}
}
