package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetctl/supervm/pkg/api"
	"github.com/fleetctl/supervm/pkg/client"
	"github.com/fleetctl/supervm/pkg/dispatcher"
	"github.com/fleetctl/supervm/pkg/healthmonitor"
	"github.com/fleetctl/supervm/pkg/log"
	"github.com/fleetctl/supervm/pkg/nodeprovider"
	"github.com/fleetctl/supervm/pkg/supervm"
	"github.com/fleetctl/supervm/pkg/types"
	"github.com/fleetctl/supervm/pkg/workerclient"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "supervm",
	Short: "SuperVM - distributed task scheduler for a fleet of worker VMs",
	Long: `SuperVM presents a pool of heterogeneous worker virtual machines as a
single logical fleet and dispatches coarse-grained compute tasks across
them: render jobs, data processing chunks, browser automation, and file
sync, fanned out by node and reassembled into one task result.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"supervm version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("api-addr", "127.0.0.1:8080", "ControlAPI address used by CLI subcommands")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(scaleCmd)
	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(computeCmd)
	rootCmd.AddCommand(browserCmd)
	rootCmd.AddCommand(syncCmd)

	nodeCmd.AddCommand(nodeListCmd)
	nodeCmd.AddCommand(nodeGetCmd)
	nodeCmd.AddCommand(nodeDrainCmd)
	nodeCmd.AddCommand(nodeUndrainCmd)

	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskGetCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func apiClient(cmd *cobra.Command) *client.Client {
	addr, _ := cmd.Flags().GetString("api-addr")
	return client.NewClient(addr)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and its ControlAPI",
	Long: `Start the SuperVM scheduler: bootstrap fleet membership from the
configured NodeProvider, start the HealthMonitor and TaskStore sweeper,
and serve the ControlAPI until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		listen, _ := cmd.Flags().GetString("listen")
		nodesFile, _ := cmd.Flags().GetString("nodes-file")
		maxLoadPct, _ := cmd.Flags().GetFloat64("max-load-pct")
		reserveDelta, _ := cmd.Flags().GetFloat64("reserve-delta-pct")
		maxFanOut, _ := cmd.Flags().GetInt("max-fan-out")
		taskDeadline, _ := cmd.Flags().GetDuration("task-deadline")
		probeInterval, _ := cmd.Flags().GetDuration("probe-interval")
		probeTimeout, _ := cmd.Flags().GetDuration("probe-timeout")
		retention, _ := cmd.Flags().GetDuration("task-retention")

		provider, err := loadProvider(nodesFile)
		if err != nil {
			return fmt.Errorf("load node provider: %w", err)
		}

		cfg := supervm.Config{
			MaxLoadPct: maxLoadPct,
			MaxFanOut:  maxFanOut,
			Dispatcher: dispatcher.Config{
				ReserveDelta: reserveDelta,
				TaskDeadline: taskDeadline,
			},
			HealthMonitor: healthmonitor.Config{
				SweepInterval: probeInterval,
				ProbeTimeout:  probeTimeout,
			},
			TaskRetention: retention,
		}

		vm := supervm.New(provider, workerclient.NewHTTPClient(), cfg)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := vm.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize supervm: %w", err)
		}
		defer vm.Shutdown()

		srv := api.New(vm, api.Config{Addr: listen})

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			log.Info("shutdown signal received")
			cancel()
		}()

		fmt.Printf("SuperVM listening on %s\n", listen)
		return srv.ListenAndServe(ctx)
	},
}

func init() {
	serveCmd.Flags().String("listen", ":8080", "ControlAPI listen address")
	serveCmd.Flags().String("nodes-file", "", "JSON file describing the initial static fleet (see nodeprovider.StaticProvider); empty starts with no nodes")
	serveCmd.Flags().Float64("max-load-pct", 90, "MaxLoadPct: ceiling on reserved+measured load per node")
	serveCmd.Flags().Float64("reserve-delta-pct", 20, "Reservation estimate the Dispatcher holds per in-flight partition")
	serveCmd.Flags().Int("max-fan-out", 32, "Ceiling on concurrent partitions per task")
	serveCmd.Flags().Duration("task-deadline", 5*time.Minute, "Per-task dispatch deadline")
	serveCmd.Flags().Duration("probe-interval", 30*time.Second, "HealthMonitor sweep cadence")
	serveCmd.Flags().Duration("probe-timeout", 5*time.Second, "Per-node health probe timeout")
	serveCmd.Flags().Duration("task-retention", time.Hour, "How long terminal tasks remain in TaskStore before eviction")
}

// staticNodeSpec is the on-disk shape accepted by --nodes-file.
type staticNodeSpec struct {
	ID       string            `json:"id" yaml:"id"`
	Label    string            `json:"label" yaml:"label"`
	Address  string            `json:"address" yaml:"address"`
	CPUCores int               `json:"cpuCores" yaml:"cpuCores"`
	MemoryMB int               `json:"memoryMb" yaml:"memoryMb"`
	GPUCount int               `json:"gpuCount" yaml:"gpuCount"`
	Labels   map[string]string `json:"labels" yaml:"labels"`
}

func loadProvider(path string) (nodeprovider.NodeProvider, error) {
	if path == "" {
		return nodeprovider.NewStaticProvider(nil, uuid.NewString), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var specs []staticNodeSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	descriptors := make([]nodeprovider.Descriptor, 0, len(specs))
	for _, s := range specs {
		id := s.ID
		if id == "" {
			id = uuid.NewString()
		}
		descriptors = append(descriptors, nodeprovider.Descriptor{
			ID:      id,
			Label:   s.Label,
			Address: s.Address,
			Role:    types.NodeRoleWorker,
			Capacity: types.NodeCapacity{
				CPUCores: s.CPUCores,
				MemoryMB: s.MemoryMB,
				GPUCount: s.GPUCount,
			},
			Labels: s.Labels,
		})
	}
	return nodeprovider.NewStaticProvider(descriptors, uuid.NewString), nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the SuperVM status snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := apiClient(cmd).Status()
		if err != nil {
			return err
		}
		return printJSON(status)
	},
}

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Inspect and manage fleet nodes",
}

var nodeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		nodes, err := apiClient(cmd).ListNodes()
		if err != nil {
			return err
		}
		return printJSON(nodes)
	},
}

var nodeGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one node's detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		node, err := apiClient(cmd).GetNode(args[0])
		if err != nil {
			return err
		}
		return printJSON(node)
	},
}

var nodeDrainCmd = &cobra.Command{
	Use:   "drain <id>",
	Short: "Mark a node Draining, removing it from scheduling eligibility",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		node, err := apiClient(cmd).DrainNode(args[0])
		if err != nil {
			return err
		}
		return printJSON(node)
	},
}

var nodeUndrainCmd = &cobra.Command{
	Use:   "undrain <id>",
	Short: "Return a Draining node to Running",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		node, err := apiClient(cmd).UndrainNode(args[0])
		if err != nil {
			return err
		}
		return printJSON(node)
	},
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect submitted tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List submitted tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		status, _ := cmd.Flags().GetString("status")
		tasks, err := apiClient(cmd).ListTasks(kind, status)
		if err != nil {
			return err
		}
		return printJSON(tasks)
	},
}

var taskGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one task's full record, including its result or error",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := apiClient(cmd).GetTask(args[0])
		if err != nil {
			return err
		}
		return printJSON(task)
	},
}

func init() {
	taskListCmd.Flags().String("kind", "", "Filter by task kind")
	taskListCmd.Flags().String("status", "", "Filter by task status")
}

// loadTaskBody reads a task submission body from the -f file, mirroring the
// teacher's `apply -f` convention for declarative resource submission.
func loadTaskBody(cmd *cobra.Command) (map[string]interface{}, error) {
	file, _ := cmd.Flags().GetString("file")
	if file == "" {
		return nil, fmt.Errorf("missing required -f/--file task definition")
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	var body map[string]interface{}
	if err := yaml.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	return body, nil
}

func submitAndPrint(cmd *cobra.Command, submit func(*client.Client, map[string]interface{}) (*client.TaskOutcome, error)) error {
	body, err := loadTaskBody(cmd)
	if err != nil {
		return err
	}
	outcome, err := submit(apiClient(cmd), body)
	if err != nil {
		return err
	}
	return printJSON(outcome)
}

var renderCmd = &cobra.Command{
	Use:   "render -f <file>",
	Short: "Submit a render task from a YAML/JSON task definition",
	RunE: func(cmd *cobra.Command, args []string) error {
		return submitAndPrint(cmd, (*client.Client).SubmitRender)
	},
}

var computeCmd = &cobra.Command{
	Use:   "compute -f <file>",
	Short: "Submit a compute task from a YAML/JSON task definition",
	RunE: func(cmd *cobra.Command, args []string) error {
		return submitAndPrint(cmd, (*client.Client).SubmitProcess)
	},
}

var browserCmd = &cobra.Command{
	Use:   "browser -f <file>",
	Short: "Submit a browser automation task from a YAML/JSON task definition",
	RunE: func(cmd *cobra.Command, args []string) error {
		return submitAndPrint(cmd, (*client.Client).SubmitBrowser)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync -f <file>",
	Short: "Submit a file sync task from a YAML/JSON task definition",
	RunE: func(cmd *cobra.Command, args []string) error {
		return submitAndPrint(cmd, (*client.Client).SubmitSync)
	},
}

func init() {
	for _, c := range []*cobra.Command{renderCmd, computeCmd, browserCmd, syncCmd} {
		c.Flags().StringP("file", "f", "", "YAML/JSON file describing the task")
	}
}

var scaleCmd = &cobra.Command{
	Use:   "scale <delta>",
	Short: "Request additional worker nodes from the NodeProvider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var delta int
		if _, err := fmt.Sscanf(args[0], "%d", &delta); err != nil {
			return fmt.Errorf("invalid delta %q: %w", args[0], err)
		}
		cpu, _ := cmd.Flags().GetInt("cpu")
		memMB, _ := cmd.Flags().GetInt("memory-mb")
		gpu, _ := cmd.Flags().GetInt("gpu")

		template := map[string]interface{}{
			"cpuCores": cpu,
			"memoryMb": memMB,
			"gpuCount": gpu,
		}
		if err := apiClient(cmd).Scale(delta, template); err != nil {
			return err
		}
		fmt.Printf("requested %d additional node(s)\n", delta)
		return nil
	},
}

func init() {
	scaleCmd.Flags().Int("cpu", 4, "CPU cores per requested node")
	scaleCmd.Flags().Int("memory-mb", 8192, "Memory (MB) per requested node")
	scaleCmd.Flags().Int("gpu", 0, "GPU count per requested node")
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
