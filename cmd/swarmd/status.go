package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreamware/swarm/internal/cluster"
	"github.com/dreamware/swarm/internal/controller"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running swarm daemon",
	Long:  `Fetch /status from a running daemon and print the fleet's state.`,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().String("addr", "http://localhost:8400", "base URL of the daemon")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var status controller.Status
	if err := cluster.GetJSON(ctx, addr+"/status", &status); err != nil {
		return fmt.Errorf("fetch status from %s: %w", addr, err)
	}

	fmt.Printf("Controller: %s (%s)\n", status.ControllerID, status.State)
	fmt.Printf("Nodes: %d of %d\n", status.NodeCount, status.MaxNodes)
	fmt.Printf("Tasks: %d processed, %d failed\n", status.TasksProcessed, status.TasksFailed)
	fmt.Printf("Queue: %d waiting\n", status.QueueSize)
	fmt.Printf("Uptime: %.0fs\n\n", status.UptimeSeconds)

	for _, n := range status.Nodes {
		fmt.Printf("[%s] %s", n.ID, n.State)
		if n.ParentID != "" {
			fmt.Printf(" (child of %s)", n.ParentID)
		}
		fmt.Println()
		fmt.Printf("    queue=%d completed=%d failed=%d\n",
			n.Metrics.QueueSize, n.Metrics.TasksCompleted, n.Metrics.TasksFailed)
	}

	return nil
}
