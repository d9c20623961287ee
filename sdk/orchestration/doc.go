// Package orchestration provides the programming model for writing
// durable orchestrations.
//
// An orchestration is a regular Go function taking an
// orchestration.Context as its first parameter. It coordinates
// activities, durable timers and external events, and may run for
// seconds or months: the engine persists every decision it makes and
// rebuilds in-flight state by re-executing the function against that
// record.
//
// # Writing orchestrations
//
//	func Greeter(ctx orchestration.Context, name string) ([]string, error) {
//		var tokyo string
//		if err := orchestration.CallActivity(ctx, SayHello, "Tokyo").Get(ctx, &tokyo); err != nil {
//			return nil, err
//		}
//		var seattle string
//		if err := orchestration.CallActivity(ctx, SayHello, "Seattle").Get(ctx, &seattle); err != nil {
//			return nil, err
//		}
//		return []string{tokyo, seattle}, nil
//	}
//
// # Determinism
//
// Orchestration code re-executes from the top on every resume, so it
// must make the same calls in the same order every time. Do not:
//   - perform I/O directly (filesystem, network, database)
//   - read the wall clock (use CurrentTime and timers)
//   - generate random values
//   - spawn goroutines
//
// All non-deterministic work belongs in activities.
//
// # Fan-out and races
//
// CallActivity returns immediately with a Task; starting several before
// the first Get runs them in parallel. All gathers results in argument
// order; Any races tasks against each other, which combined with
// CreateTimer expresses timeouts:
//
//	approval := orchestration.WaitForEvent(ctx, "ApprovalEvent")
//	deadline := orchestration.CreateTimer(ctx, orchestration.CurrentTime(ctx).Add(time.Hour))
//	var winner int
//	if err := orchestration.Any(ctx, approval, deadline).Get(ctx, &winner); err != nil {
//		return nil, err
//	}
//	if winner == 0 { /* approved in time */ }
//
// # Eternal orchestrations
//
// Monitors that poll forever should call ContinueAsNew periodically so
// their history does not grow without bound.
package orchestration
