package main

import (
	"context"
	"fmt"
	"github.com/spf13/cobra"
	"go-ml.dev/pkg/automl/store"
	"io"
	"text/tabwriter"
	"time"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage saved models",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved models, the most recent first",
	Args:  cobra.NoArgs,
	RunE:  listModels,
}

var modelsDeleteCmd = &cobra.Command{
	Use:   "delete <name>...",
	Short: "Delete saved models",
	Args:  cobra.MinimumNArgs(1),
	RunE:  deleteModels,
}

func init() {
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsDeleteCmd)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func openStore() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.Store.Path)
}

func listModels(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	l, err := st.List(context.Background())
	if err != nil {
		return err
	}
	tw := newTable(cmd.OutOrStdout())
	fmt.Fprintf(tw, "NAME\tSAVED\tTARGET\tTYPE\tFEATURES\tEPOCHS\tTEST\n")
	for _, e := range l {
		m := e.Metadata
		fmt.Fprintf(tw, "%v\t%v\t%v\t%v\t%d\t%d\t%v: %.5f\n",
			e.Name, e.Timestamp.Format(time.RFC3339), m.Target, m.TargetType,
			len(m.Features), m.EpochsTrained, m.PrimaryMetric, e.Results.Test[m.PrimaryMetric])
	}
	return tw.Flush()
}

func deleteModels(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	for _, n := range args {
		if err := st.Delete(context.Background(), n); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %v\n", n)
	}
	return nil
}
