package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zvdy/emrfleet/src/models"
	"github.com/zvdy/emrfleet/src/orchestrator"
	"github.com/zvdy/emrfleet/src/reconcile"
)

var (
	outputFormat string
	searchTerm   string
	searchFields []string
	stateFilter  string
	activeOnly   bool
)

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "Inspect and control clusters",
}

var clustersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured clusters with their live state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newCLIApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		clusters, err := a.service.ListClusters(cmd.Context())
		if err != nil {
			return err
		}
		clusters = reconcile.Filter(clusters, searchTerm, searchFields)
		clusters = reconcile.FilterByState(clusters, stateFilter)
		if activeOnly {
			clusters = reconcile.FilterActive(clusters)
		}
		return writeClusters(cmd.OutOrStdout(), outputFormat, clusters)
	},
}

var clustersGetCmd = &cobra.Command{
	Use:   "get NAME",
	Short: "Show one cluster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newCLIApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		cluster, err := a.service.GetCluster(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeClusters(cmd.OutOrStdout(), outputFormat, []models.MergedClusterRecord{cluster})
	},
}

var clustersStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count clusters per state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newCLIApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.service.Stats(cmd.Context())
		if err != nil {
			return err
		}
		return writeStats(cmd.OutOrStdout(), outputFormat, stats)
	},
}

var clustersStartCmd = &cobra.Command{
	Use:   "start NAME",
	Short: "Submit a create command for a cluster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newCLIApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		payload, err := a.service.StartCluster(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writePayload(cmd.OutOrStdout(), payload)
	},
}

var clustersTerminateCmd = &cobra.Command{
	Use:   "terminate NAME",
	Short: "Submit an immediate terminate command for a cluster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newCLIApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		payload, err := a.service.TerminateCluster(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writePayload(cmd.OutOrStdout(), payload)
	},
}

func init() {
	clustersCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "json", "output format: json or text")
	clustersListCmd.Flags().StringVarP(&searchTerm, "query", "q", "", "case-insensitive search term")
	clustersListCmd.Flags().StringSliceVar(&searchFields, "fields", nil, "fields searched by --query (dotted paths, default name)")
	clustersListCmd.Flags().StringVar(&stateFilter, "state", "", "only list clusters in this state")
	clustersListCmd.Flags().BoolVar(&activeOnly, "active", false, "only list clusters that are up or coming up")

	clustersCmd.AddCommand(clustersListCmd, clustersGetCmd, clustersStatsCmd, clustersStartCmd, clustersTerminateCmd)
	rootCmd.AddCommand(clustersCmd)
}

// newCLIApp wires the service and keeps logs off stdout, which carries the
// command output.
func newCLIApp(cmd *cobra.Command) (*app, error) {
	a, err := newApp(cmd.Context(), configPath)
	if err != nil {
		return nil, err
	}
	if a.logFile == nil {
		a.log.SetOutput(os.Stderr)
	}
	return a, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writePayload(w io.Writer, payload json.RawMessage) error {
	if len(payload) == 0 {
		return nil
	}
	return writeJSON(w, payload)
}

func writeClusters(w io.Writer, format string, clusters []models.MergedClusterRecord) error {
	switch format {
	case "json":
		return writeJSON(w, clusters)
	case "text":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSTATE\tCLUSTER ID\tREASON")
		for _, c := range clusters {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				c.Name, orchestrator.DisplayState(c.State), deref(c.ClusterID), deref(c.LastStateChangeReason))
		}
		return tw.Flush()
	}
	return fmt.Errorf("unknown output format: %s", format)
}

func writeStats(w io.Writer, format string, stats models.FleetStats) error {
	switch format {
	case "json":
		return writeJSON(w, stats)
	case "text":
		states := make([]string, 0, len(stats.ByState))
		for state := range stats.ByState {
			states = append(states, state)
		}
		sort.Strings(states)

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "STATE\tCOUNT\tPERCENT")
		for _, state := range states {
			sc := stats.ByState[state]
			fmt.Fprintf(tw, "%s\t%d\t%s%%\n", orchestrator.DisplayState(state), sc.Count, sc.Percentage)
		}
		fmt.Fprintf(tw, "TOTAL\t%d\t\n", stats.Total)
		return tw.Flush()
	}
	return fmt.Errorf("unknown output format: %s", format)
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
