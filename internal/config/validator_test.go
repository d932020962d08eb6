package config

import (
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "node.max_queue_size",
		Value:   0,
		Message: "must be between 1 and 100000",
	}

	expected := "node.max_queue_size: must be between 1 and 100000 (got: 0)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "fabric.max_nodes", Value: 0, Message: "is invalid"},
		}
		expected := "fabric.max_nodes: is invalid (got: 0)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "fabric.max_nodes", Value: 0, Message: "must be between 1 and 1000"},
			{Field: "mesh.max_peers", Value: -5, Message: "must be between 1 and 10000"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "fabric.max_nodes") || !strings.Contains(result, "mesh.max_peers") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	cfg := Default()
	errs := cfg.Validate()
	if len(errs) != 0 {
		t.Errorf("Default config should be valid, got %d errors: %v", len(errs), errs)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty listen", func(c *Config) { c.Server.Listen = "" }, "server.listen"},
		{"negative shutdown grace", func(c *Config) { c.Server.ShutdownGraceSeconds = -1 }, "server.shutdown_grace_seconds"},
		{"empty controller id", func(c *Config) { c.Controller.ID = "" }, "controller.id"},
		{"zero execute timeout", func(c *Config) { c.Controller.ExecuteTimeoutSeconds = 0 }, "controller.execute_timeout_seconds"},
		{"huge execute timeout", func(c *Config) { c.Controller.ExecuteTimeoutSeconds = 4000 }, "controller.execute_timeout_seconds"},
		{"zero scale up", func(c *Config) { c.Controller.ScaleUpThreshold = 0 }, "controller.scale_up_threshold"},
		{"scale down above scale up", func(c *Config) { c.Controller.ScaleDownThreshold = 50 }, "controller.scale_down_threshold"},
		{"negative scale down", func(c *Config) { c.Controller.ScaleDownThreshold = -1 }, "controller.scale_down_threshold"},
		{"zero queue capacity", func(c *Config) { c.Controller.QueueCapacity = 0 }, "controller.queue_capacity"},
		{"empty fabric id", func(c *Config) { c.Fabric.ID = "" }, "fabric.id"},
		{"zero max nodes", func(c *Config) { c.Fabric.MaxNodes = 0 }, "fabric.max_nodes"},
		{"huge max nodes", func(c *Config) { c.Fabric.MaxNodes = 5000 }, "fabric.max_nodes"},
		{"zero heal interval", func(c *Config) { c.Fabric.HealIntervalSeconds = 0 }, "fabric.heal_interval_seconds"},
		{"zero queue size", func(c *Config) { c.Node.MaxQueueSize = 0 }, "node.max_queue_size"},
		{"zero spawn threshold", func(c *Config) { c.Node.SpawnThreshold = 0 }, "node.spawn_threshold"},
		{"spawn threshold above one", func(c *Config) { c.Node.SpawnThreshold = 1.5 }, "node.spawn_threshold"},
		{"negative max children", func(c *Config) { c.Node.MaxChildren = -1 }, "node.max_children"},
		{"zero gossip interval", func(c *Config) { c.Mesh.GossipIntervalSeconds = 0 }, "mesh.gossip_interval_seconds"},
		{"zero route ttl", func(c *Config) { c.Mesh.RouteTTLSeconds = 0 }, "mesh.route_ttl_seconds"},
		{"zero max peers", func(c *Config) { c.Mesh.MaxPeers = 0 }, "mesh.max_peers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			errs := cfg.Validate()
			if len(errs) == 0 {
				t.Fatalf("Validate() found no errors, want one on %s", tt.field)
			}
			found := false
			for _, err := range errs {
				if err.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("Validate() = %v, want error on %s", ValidationErrors(errs), tt.field)
			}
		})
	}
}
