package config

import (
	"fmt"
	"strings"
)

// Validation bounds. Values outside these ranges are almost certainly
// typos rather than intent.
const (
	maxNodesLimit      = 1000
	maxQueueSizeLimit  = 100000
	maxPeersLimit      = 10000
	maxTimeoutSeconds  = 3600
	maxQueueCapacity   = 1 << 20
	maxChildrenLimit   = 100
	maxIntervalSeconds = 86400
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "node.max_queue_size")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Validate checks the full configuration and returns all failures found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateController()...)
	errs = append(errs, c.validateFabric()...)
	errs = append(errs, c.validateNode()...)
	errs = append(errs, c.validateMesh()...)
	return errs
}

func (c *Config) validateServer() []ValidationError {
	var errs []ValidationError

	if c.Server.Listen == "" {
		errs = append(errs, ValidationError{
			Field:   "server.listen",
			Value:   c.Server.Listen,
			Message: "must not be empty",
		})
	}

	if c.Server.ShutdownGraceSeconds < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.shutdown_grace_seconds",
			Value:   c.Server.ShutdownGraceSeconds,
			Message: "must not be negative",
		})
	}

	return errs
}

func (c *Config) validateController() []ValidationError {
	var errs []ValidationError

	if c.Controller.ID == "" {
		errs = append(errs, ValidationError{
			Field:   "controller.id",
			Value:   c.Controller.ID,
			Message: "must not be empty",
		})
	}

	if c.Controller.ExecuteTimeoutSeconds < 1 || c.Controller.ExecuteTimeoutSeconds > maxTimeoutSeconds {
		errs = append(errs, ValidationError{
			Field:   "controller.execute_timeout_seconds",
			Value:   c.Controller.ExecuteTimeoutSeconds,
			Message: fmt.Sprintf("must be between 1 and %d", maxTimeoutSeconds),
		})
	}

	if c.Controller.ScaleUpThreshold < 1 {
		errs = append(errs, ValidationError{
			Field:   "controller.scale_up_threshold",
			Value:   c.Controller.ScaleUpThreshold,
			Message: "must be at least 1",
		})
	}

	if c.Controller.ScaleDownThreshold < 0 {
		errs = append(errs, ValidationError{
			Field:   "controller.scale_down_threshold",
			Value:   c.Controller.ScaleDownThreshold,
			Message: "must not be negative",
		})
	} else if c.Controller.ScaleDownThreshold >= c.Controller.ScaleUpThreshold {
		errs = append(errs, ValidationError{
			Field:   "controller.scale_down_threshold",
			Value:   c.Controller.ScaleDownThreshold,
			Message: "must be below controller.scale_up_threshold",
		})
	}

	if c.Controller.QueueCapacity < 1 || c.Controller.QueueCapacity > maxQueueCapacity {
		errs = append(errs, ValidationError{
			Field:   "controller.queue_capacity",
			Value:   c.Controller.QueueCapacity,
			Message: fmt.Sprintf("must be between 1 and %d", maxQueueCapacity),
		})
	}

	return errs
}

func (c *Config) validateFabric() []ValidationError {
	var errs []ValidationError

	if c.Fabric.ID == "" {
		errs = append(errs, ValidationError{
			Field:   "fabric.id",
			Value:   c.Fabric.ID,
			Message: "must not be empty",
		})
	}

	if c.Fabric.MaxNodes < 1 || c.Fabric.MaxNodes > maxNodesLimit {
		errs = append(errs, ValidationError{
			Field:   "fabric.max_nodes",
			Value:   c.Fabric.MaxNodes,
			Message: fmt.Sprintf("must be between 1 and %d", maxNodesLimit),
		})
	}

	if c.Fabric.HealIntervalSeconds < 1 || c.Fabric.HealIntervalSeconds > maxIntervalSeconds {
		errs = append(errs, ValidationError{
			Field:   "fabric.heal_interval_seconds",
			Value:   c.Fabric.HealIntervalSeconds,
			Message: fmt.Sprintf("must be between 1 and %d", maxIntervalSeconds),
		})
	}

	return errs
}

func (c *Config) validateNode() []ValidationError {
	var errs []ValidationError

	if c.Node.MaxQueueSize < 1 || c.Node.MaxQueueSize > maxQueueSizeLimit {
		errs = append(errs, ValidationError{
			Field:   "node.max_queue_size",
			Value:   c.Node.MaxQueueSize,
			Message: fmt.Sprintf("must be between 1 and %d", maxQueueSizeLimit),
		})
	}

	if c.Node.SpawnThreshold <= 0 || c.Node.SpawnThreshold > 1 {
		errs = append(errs, ValidationError{
			Field:   "node.spawn_threshold",
			Value:   c.Node.SpawnThreshold,
			Message: "must be greater than 0 and at most 1",
		})
	}

	if c.Node.MaxChildren < 0 || c.Node.MaxChildren > maxChildrenLimit {
		errs = append(errs, ValidationError{
			Field:   "node.max_children",
			Value:   c.Node.MaxChildren,
			Message: fmt.Sprintf("must be between 0 and %d", maxChildrenLimit),
		})
	}

	return errs
}

func (c *Config) validateMesh() []ValidationError {
	var errs []ValidationError

	intervals := []struct {
		field string
		value int
	}{
		{"mesh.gossip_interval_seconds", c.Mesh.GossipIntervalSeconds},
		{"mesh.cleanup_interval_seconds", c.Mesh.CleanupIntervalSeconds},
		{"mesh.peer_liveness_timeout_seconds", c.Mesh.PeerLivenessTimeoutSeconds},
		{"mesh.route_ttl_seconds", c.Mesh.RouteTTLSeconds},
	}
	for _, iv := range intervals {
		if iv.value < 1 || iv.value > maxIntervalSeconds {
			errs = append(errs, ValidationError{
				Field:   iv.field,
				Value:   iv.value,
				Message: fmt.Sprintf("must be between 1 and %d", maxIntervalSeconds),
			})
		}
	}

	if c.Mesh.MaxPeers < 1 || c.Mesh.MaxPeers > maxPeersLimit {
		errs = append(errs, ValidationError{
			Field:   "mesh.max_peers",
			Value:   c.Mesh.MaxPeers,
			Message: fmt.Sprintf("must be between 1 and %d", maxPeersLimit),
		})
	}

	return errs
}
