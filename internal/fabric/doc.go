// Package fabric manages the live set of worker nodes and the mesh that
// connects them.
//
// # Overview
//
// A Fabric is the cluster membership authority. It creates nodes on
// demand, admits children that overloaded nodes spawn on their own, and
// retires nodes that terminate. Every membership change is mirrored into
// the fabric's mesh router so the peer directory always matches the live
// set:
//
//	SpawnNode / adoptChild ──> node started ──> RegisterPeer
//	RemoveNode / healing   ──> node stopped ──> UnregisterPeer
//
// # Capacity
//
// MaxNodes bounds the live set. The bound counts adopted children the
// same as fabric-spawned nodes, so elastic growth at the node layer can
// never push the cluster past its ceiling; a parent whose child is
// refused admission simply stays at its current size.
//
// # Self-Healing
//
// Nodes reach the terminated state on their own, either through Stop or
// through a parent's cascade. The healing loop scans the live set every
// HealInterval, removes each terminated node, and unregisters its peer
// entry, so a dead node disappears from dispatch and routing within one
// interval without any external intervention.
//
// # Concurrency Model
//
// A single mutex serializes every mutation of the node set: spawns,
// adoptions, and removals. Reads take the same lock briefly and return
// copies. Node draining happens outside the lock so one slow handler
// cannot stall membership changes. The healing loop is the only
// background goroutine; Stop cancels it and waits before stopping the
// router and the nodes.
//
// # See Also
//
// Package node for the worker lifecycle, package mesh for peer health
// and routing, and package controller for dispatch and autoscaling on
// top of a fabric.
package fabric
