// Package controller is the cluster's task-facing front door.
//
// # Overview
//
// A Controller accepts tasks through Execute, dispatches each to the
// least-loaded healthy node in its fabric, and hands the caller the
// result that node eventually reports. Submission and resolution are
// correlated by task id through a pending-waiter map, so every accepted
// task resolves exactly once: with its real result, with a typed refusal
// (no nodes, queue full), or with a timeout.
//
//	Execute ──> queue ──> dispatch loop ──> node.Submit
//	   ^                                        │
//	   └──────── pending map <── result sink <──┘
//
// # Lifecycle
//
// A controller moves through initialized, running, stopping, and
// stopped. Start brings up the fabric and guarantees one initial node;
// Stop drains both background loops, stops the fabric, and fails any
// still-pending waiters so no caller is left hanging.
//
// # Autoscaling
//
// After each dispatch the controller compares the fabric's average queue
// depth against a band: above ScaleUpThreshold it spawns a node (until
// the fabric ceiling), below ScaleDownThreshold it retires the idlest
// node. The cluster never shrinks below one node.
//
// # Timeouts
//
// ExecuteTimeout bounds every call. A result arriving after its waiter
// gave up is dropped; the waiter has already returned a timeout result.
// This also covers tasks stranded on a node that degraded after
// accepting them.
//
// # See Also
//
// Package fabric for membership and healing, package node for the worker
// loop, and package cluster for the task and result types.
package controller
