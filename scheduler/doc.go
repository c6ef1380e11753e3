// Package scheduler provides an in-process periodic task scheduler. It runs
// user-supplied callables at configurable intervals, with priority-based
// dispatch order, time-of-day admission windows, per-task execution time
// limits, and a full lifecycle (pause/resume/stop/reset) with observable
// state transitions.
//
// # Basic Usage
//
//	sched, err := scheduler.New(scheduler.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	spec, err := scheduler.NewTaskSpec(10*time.Second,
//		scheduler.WithName("sync_inventory"),
//		scheduler.WithPriority(scheduler.PriorityHigh),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	task, err := sched.Register(func(ctx context.Context) error {
//		return inventory.Sync(ctx)
//	}, spec)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	task.OnFailure(func(view scheduler.TaskView, err error) {
//		log.Printf("sync_inventory failed: %v", err)
//	})
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	if err := sched.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// # Time windows
//
// Tasks can be restricted to run only within one or more wall-clock
// admission windows, including windows that wrap past midnight:
//
//	spec, _ := scheduler.NewTaskSpec(time.Minute,
//		scheduler.WithTimeWindows(scheduler.TimeWindow{
//			Start: scheduler.NewTimeOfDay(9, 0, 0),
//			End:   scheduler.NewTimeOfDay(17, 0, 0),
//		}),
//	)
//
// # Testing with an injected clock
//
// Production code never needs to touch the Clock abstraction; tests that
// need deterministic control over due-time computation can supply a
// FixedClock and drive the dispatch loop one tick at a time with
// Scheduler.RunOnce instead of waiting on the real check interval:
//
//	clock := scheduler.NewFixedClock(time.Unix(0, 0))
//	sched, _ := scheduler.New(scheduler.DefaultConfig(), scheduler.WithClock(clock))
//	...
//	now := clock.Advance(10 * time.Second)
//	sched.RunOnce(ctx, now)
package scheduler
