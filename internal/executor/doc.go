// Package executor is the task graph runner. A call to Run is one execution
// run: it resolves the goals against the task table, ensures every task in
// their closure runs at most once, and reports per-task outcomes.
//
// For each task the runner first ensures all prerequisites concurrently,
// then the task's sequence entries one after another, then runs the task's
// own actions serially. A task is started by whichever requester reaches it
// first; later requesters wait for it to reach a terminal state.
//
// Failure handling depends on the run mode and the task policy:
//
//	mode       policy    on failure
//	fail-fast  default   abort the run
//	fail-soft  default   log, continue, run is Degraded
//	any        advisory  log a warning, continue, run is Degraded
//	any        fatal     abort the run
//
// Aborting cancels the run context: in-flight processes are killed and no
// task that has not started yet will start. Such tasks stay Pending.
package executor
