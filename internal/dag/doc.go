// Package dag holds the string-keyed dependency graph underneath the task
// table. It knows nothing about actions or execution: it stores edges,
// rejects cycles with a readable path, and answers closure and ordering
// questions for the runner and for `taskgrid inspect`.
package dag
