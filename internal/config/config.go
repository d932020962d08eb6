package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete swarm daemon configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Controller ControllerConfig `mapstructure:"controller"`
	Fabric     FabricConfig     `mapstructure:"fabric"`
	Node       NodeConfig       `mapstructure:"node"`
	Mesh       MeshConfig       `mapstructure:"mesh"`
}

// ServerConfig controls the HTTP API surface
type ServerConfig struct {
	// Listen is the address the API server binds to (default: ":8400")
	Listen string `mapstructure:"listen"`
	// ShutdownGraceSeconds is how long a shutting-down server waits for
	// in-flight requests (default: 10)
	ShutdownGraceSeconds int `mapstructure:"shutdown_grace_seconds"`
}

// ControllerConfig controls task dispatch and autoscaling
type ControllerConfig struct {
	// ID names the controller in logs and metrics (default: "controller")
	ID string `mapstructure:"id"`
	// ExecuteTimeoutSeconds bounds how long a submitted task may take
	// end to end (default: 30)
	ExecuteTimeoutSeconds int `mapstructure:"execute_timeout_seconds"`
	// ScaleUpThreshold is the average queue depth above which the
	// cluster grows (default: 50)
	ScaleUpThreshold int `mapstructure:"scale_up_threshold"`
	// ScaleDownThreshold is the average queue depth below which the
	// cluster shrinks, never under one node (default: 10)
	ScaleDownThreshold int `mapstructure:"scale_down_threshold"`
	// QueueCapacity bounds the controller's dispatch queue (default: 256)
	QueueCapacity int `mapstructure:"queue_capacity"`
	// AutoScale enables automatic scaling (default: true)
	AutoScale bool `mapstructure:"auto_scale"`
}

// FabricConfig controls cluster membership
type FabricConfig struct {
	// ID names the fabric; its router is named "<id>_router"
	// (default: "default")
	ID string `mapstructure:"id"`
	// MaxNodes caps the live node set, adopted children included
	// (default: 10)
	MaxNodes int `mapstructure:"max_nodes"`
	// HealIntervalSeconds is the cadence of the loop that reaps
	// terminated nodes (default: 10)
	HealIntervalSeconds int `mapstructure:"heal_interval_seconds"`
}

// NodeConfig is the template applied to every worker node
type NodeConfig struct {
	// MaxQueueSize bounds each node's task queue (default: 100)
	MaxQueueSize int `mapstructure:"max_queue_size"`
	// SpawnThreshold is the queue-load fraction above which a node
	// spawns a child, in (0, 1] (default: 0.8)
	SpawnThreshold float64 `mapstructure:"spawn_threshold"`
	// MaxChildren bounds how many children one node may spawn
	// (default: 5, 0 disables spawning)
	MaxChildren int `mapstructure:"max_children"`
}

// MeshConfig controls peer gossip and routing
type MeshConfig struct {
	// GossipIntervalSeconds is the broadcast cadence (default: 5)
	GossipIntervalSeconds int `mapstructure:"gossip_interval_seconds"`
	// CleanupIntervalSeconds is the eviction cadence (default: 10)
	CleanupIntervalSeconds int `mapstructure:"cleanup_interval_seconds"`
	// PeerLivenessTimeoutSeconds is how long a silent peer stays
	// routable (default: 30)
	PeerLivenessTimeoutSeconds int `mapstructure:"peer_liveness_timeout_seconds"`
	// RouteTTLSeconds is how long an unrefreshed route survives
	// (default: 60)
	RouteTTLSeconds int `mapstructure:"route_ttl_seconds"`
	// MaxPeers bounds the peer directory (default: 50)
	MaxPeers int `mapstructure:"max_peers"`
}

// ExecuteTimeout returns the execute timeout as a time.Duration
func (c *ControllerConfig) ExecuteTimeout() time.Duration {
	return time.Duration(c.ExecuteTimeoutSeconds) * time.Second
}

// HealInterval returns the healing cadence as a time.Duration
func (c *FabricConfig) HealInterval() time.Duration {
	return time.Duration(c.HealIntervalSeconds) * time.Second
}

// GossipInterval returns the gossip cadence as a time.Duration
func (c *MeshConfig) GossipInterval() time.Duration {
	return time.Duration(c.GossipIntervalSeconds) * time.Second
}

// CleanupInterval returns the cleanup cadence as a time.Duration
func (c *MeshConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSeconds) * time.Second
}

// PeerLivenessTimeout returns the liveness window as a time.Duration
func (c *MeshConfig) PeerLivenessTimeout() time.Duration {
	return time.Duration(c.PeerLivenessTimeoutSeconds) * time.Second
}

// RouteTTL returns the route expiry window as a time.Duration
func (c *MeshConfig) RouteTTL() time.Duration {
	return time.Duration(c.RouteTTLSeconds) * time.Second
}

// ShutdownGrace returns the shutdown grace period as a time.Duration
func (c *ServerConfig) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:               ":8400",
			ShutdownGraceSeconds: 10,
		},
		Controller: ControllerConfig{
			ID:                    "controller",
			ExecuteTimeoutSeconds: 30,
			ScaleUpThreshold:      50,
			ScaleDownThreshold:    10,
			QueueCapacity:         256,
			AutoScale:             true,
		},
		Fabric: FabricConfig{
			ID:                  "default",
			MaxNodes:            10,
			HealIntervalSeconds: 10,
		},
		Node: NodeConfig{
			MaxQueueSize:   100,
			SpawnThreshold: 0.8,
			MaxChildren:    5,
		},
		Mesh: MeshConfig{
			GossipIntervalSeconds:      5,
			CleanupIntervalSeconds:     10,
			PeerLivenessTimeoutSeconds: 30,
			RouteTTLSeconds:            60,
			MaxPeers:                   50,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Server defaults
	viper.SetDefault("server.listen", defaults.Server.Listen)
	viper.SetDefault("server.shutdown_grace_seconds", defaults.Server.ShutdownGraceSeconds)

	// Controller defaults
	viper.SetDefault("controller.id", defaults.Controller.ID)
	viper.SetDefault("controller.execute_timeout_seconds", defaults.Controller.ExecuteTimeoutSeconds)
	viper.SetDefault("controller.scale_up_threshold", defaults.Controller.ScaleUpThreshold)
	viper.SetDefault("controller.scale_down_threshold", defaults.Controller.ScaleDownThreshold)
	viper.SetDefault("controller.queue_capacity", defaults.Controller.QueueCapacity)
	viper.SetDefault("controller.auto_scale", defaults.Controller.AutoScale)

	// Fabric defaults
	viper.SetDefault("fabric.id", defaults.Fabric.ID)
	viper.SetDefault("fabric.max_nodes", defaults.Fabric.MaxNodes)
	viper.SetDefault("fabric.heal_interval_seconds", defaults.Fabric.HealIntervalSeconds)

	// Node defaults
	viper.SetDefault("node.max_queue_size", defaults.Node.MaxQueueSize)
	viper.SetDefault("node.spawn_threshold", defaults.Node.SpawnThreshold)
	viper.SetDefault("node.max_children", defaults.Node.MaxChildren)

	// Mesh defaults
	viper.SetDefault("mesh.gossip_interval_seconds", defaults.Mesh.GossipIntervalSeconds)
	viper.SetDefault("mesh.cleanup_interval_seconds", defaults.Mesh.CleanupIntervalSeconds)
	viper.SetDefault("mesh.peer_liveness_timeout_seconds", defaults.Mesh.PeerLivenessTimeoutSeconds)
	viper.SetDefault("mesh.route_ttl_seconds", defaults.Mesh.RouteTTLSeconds)
	viper.SetDefault("mesh.max_peers", defaults.Mesh.MaxPeers)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "swarm")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".swarm"
	}
	return filepath.Join(home, ".config", "swarm")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
