package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/continuity/internal/launch"
)

var (
	servicesFile string
	priorityFlag []string
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Launch every described service, priority services first",
	Args:  cobra.NoArgs,
	RunE:  runDeploy,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Probe described services over gRPC health",
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

func init() {
	for _, c := range []*cobra.Command{deployCmd, validateCmd} {
		c.Flags().StringVar(&servicesFile, "services", "", "Service descriptor file (default: services_file)")
	}
	deployCmd.Flags().StringSliceVar(&priorityFlag, "priority", nil, "Priority service names (default: priority_services)")
}

func loadServices() (map[string]launch.Descriptor, error) {
	path := servicesFile
	if path == "" {
		path = cfg.ServicesFile
	}
	return launch.LoadDescriptors(path)
}

func newCoordinator() *launch.Coordinator {
	return launch.NewCoordinator(launch.Options{
		Timeout:     cfg.LaunchTimeoutDuration(),
		Parallelism: cfg.LaunchParallelism,
		Logger:      logger,
	})
}

func runDeploy(cmd *cobra.Command, args []string) error {
	descs, err := loadServices()
	if err != nil {
		return err
	}
	priority := cfg.PriorityServices
	if cmd.Flags().Changed("priority") {
		priority = priorityFlag
	}

	results := newCoordinator().DeployAll(cmd.Context(), descs, priority)
	ready := launch.PriorityReady(results, priority)

	if jsonOut {
		if err := printJSON(map[string]interface{}{"results": results, "priority_ready": ready}); err != nil {
			return err
		}
	} else {
		names := make([]string, 0, len(results))
		for name := range results {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Printf("%-20s  %-8s  %-20s  %s\n", "Service", "Status", "Finished", "Detail")
		for _, name := range names {
			r := results[name]
			detail := r.Error
			if detail == "" {
				detail = r.Command
			}
			fmt.Printf("%-20s  %-8s  %-20s  %s\n", name, r.Status, formatTime(r.Timestamp), detail)
		}
	}

	if !ready {
		return errors.New("priority services not ready")
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	descs, err := loadServices()
	if err != nil {
		return err
	}
	out := newCoordinator().Validate(cmd.Context(), descs)
	if jsonOut {
		return printJSON(out)
	}

	names := make([]string, 0, len(out))
	for name := range out {
		names = append(names, name)
	}
	sort.Strings(names)
	degraded := 0
	fmt.Printf("%-20s  %-11s  %s\n", "Service", "Health", "Probe")
	for _, name := range names {
		v := out[name]
		probe := string(v.Probe)
		if v.Error != "" {
			probe = v.Error
		}
		if probe == "" {
			probe = "-"
		}
		if v.Health == launch.HealthDegraded {
			degraded++
		}
		fmt.Printf("%-20s  %-11s  %s\n", name, v.Health, probe)
	}
	if degraded > 0 {
		return fmt.Errorf("%d service(s) degraded", degraded)
	}
	return nil
}
