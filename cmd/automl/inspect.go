package main

import (
	"fmt"
	"github.com/spf13/cobra"
	"go-ml.dev/pkg/automl/preprocess"
	"go-ml.dev/pkg/automl/tables"
)

var inspectTarget string

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.csv>",
	Short: "Show columns of a dataset and check the target column",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectTarget, "target", "t", "", "Target column to check")
}

func runInspect(cmd *cobra.Command, args []string) error {
	t, err := tables.ReadCSVFile(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "rows: %d\n", t.Len())
	tw := newTable(out)
	fmt.Fprintf(tw, "COLUMN\tKIND\tMISSING\tDISTINCT\n")
	for _, c := range t.Columns {
		values := t.Col(c)
		info := preprocess.InspectTarget(values)
		fmt.Fprintf(tw, "%v\t%v\t%d\t%d\n", c, tables.Classify(values), info.Missing, info.Distinct)
	}
	if err = tw.Flush(); err != nil {
		return err
	}
	if inspectTarget == "" {
		return nil
	}
	if !t.Has(inspectTarget) {
		return fmt.Errorf("`%v`: %w", inspectTarget, preprocess.ErrUnknownColumn)
	}
	values := t.Col(inspectTarget)
	info := preprocess.InspectTarget(values)
	fmt.Fprintf(out, "target %v: %v, %d rows without value will be discarded\n",
		inspectTarget, preprocess.DetectTargetType(values), info.Missing)
	if info.Distinct < 2 {
		return fmt.Errorf("`%v`: %w", inspectTarget, preprocess.ErrConstantTarget)
	}
	return nil
}
