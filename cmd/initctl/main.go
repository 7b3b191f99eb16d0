// Command initctl is the control CLI for initd: start/stop/restart
// jobs, emit events, and watch live state, all over the control
// socket the supervisor listens on.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/initcore/initd/internal/buildinfo"
)

var (
	flagSocket   string
	flagWait     bool
	flagInstance string
	flagEnv      []string
	flagSession  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "initctl",
	Short:        "control initd, the job supervisor",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagSocket, "socket", "/run/initd/initctl.sock", "path to the initd control socket")

	startCmd.Flags().StringVar(&flagInstance, "instance", "", "instance name for a templated class")
	startCmd.Flags().StringArrayVar(&flagEnv, "env", nil, "KEY=VALUE pair to set on the job (repeatable)")
	startCmd.Flags().StringVar(&flagSession, "session", "", "session owning this job (default: system)")
	startCmd.Flags().BoolVar(&flagWait, "wait", false, "block until the job reaches its goal state")

	stopCmd.Flags().StringVar(&flagInstance, "instance", "", "instance name for a templated class")
	stopCmd.Flags().BoolVar(&flagWait, "wait", false, "block until the job reaches its goal state")

	restartCmd.Flags().StringVar(&flagInstance, "instance", "", "instance name for a templated class")
	restartCmd.Flags().StringArrayVar(&flagEnv, "env", nil, "KEY=VALUE pair to set on the restarted job (repeatable)")
	restartCmd.Flags().BoolVar(&flagWait, "wait", false, "block until the job reaches its goal state")

	emitCmd.Flags().StringArrayVar(&flagEnv, "env", nil, "KEY=VALUE pair to attach to the event (repeatable)")
	emitCmd.Flags().StringVar(&flagSession, "session", "", "session to emit under (default: system)")
	emitCmd.Flags().BoolVar(&flagWait, "wait", false, "block until the event and its chain finish")

	listCmd.Flags().String("class", "", "only list instances of this class")

	rootCmd.AddCommand(startCmd, stopCmd, restartCmd, listCmd, emitCmd, statusCmd, topCmd, versionCmd)
}

var startCmd = &cobra.Command{
	Use:   "start CLASS",
	Short: "set a job's goal to start",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient(flagSocket)
		return c.startJob(cmd.Context(), jobRequest{
			Class: args[0], Instance: flagInstance, Env: flagEnv, Session: flagSession, Wait: flagWait,
		})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop CLASS",
	Short: "set a job's goal to stop",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient(flagSocket)
		return c.stopJob(cmd.Context(), jobRequest{
			Class: args[0], Instance: flagInstance, Wait: flagWait,
		})
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart CLASS",
	Short: "stop and restart a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient(flagSocket)
		return c.restartJob(cmd.Context(), jobRequest{
			Class: args[0], Instance: flagInstance, Env: flagEnv, Wait: flagWait,
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list live job instances",
	RunE: func(cmd *cobra.Command, args []string) error {
		class, _ := cmd.Flags().GetString("class")
		c := newClient(flagSocket)
		jobs, err := c.listJobs(cmd.Context(), class)
		if err != nil {
			return err
		}
		printJobTable(jobs)
		return nil
	},
}

var emitCmd = &cobra.Command{
	Use:   "emit NAME",
	Short: "emit an event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient(flagSocket)
		return c.emit(cmd.Context(), emitRequest{
			Name: args[0], Env: flagEnv, Session: flagSession, Wait: flagWait,
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "print a summary of job counts by state",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient(flagSocket)
		res, err := c.status(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print initctl's version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(buildinfo.String())
	},
}

func printJobTable(jobs []jobView) {
	fmt.Printf("%-16s %-16s %-10s %-14s %-8s %s\n", "CLASS", "INSTANCE", "GOAL", "STATE", "PID", "FAILED")
	for _, j := range jobs {
		fmt.Printf("%-16s %-16s %-10s %-14s %-8d %v\n", j.Class, j.Instance, j.Goal, j.State, j.Pid, j.Failed)
	}
}
