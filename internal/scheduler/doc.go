// Package scheduler runs a DAG of tasks: it orders tasks by their declared
// upstream edges, executes one run at a time, retries failed tasks according
// to the DAG's default args, and records every state change in a run store so
// an interrupted run resumes where it stopped.
package scheduler
