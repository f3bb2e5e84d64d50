package main

import (
	"context"
	"fmt"
	"github.com/spf13/cobra"
	"go-ml.dev/pkg/automl/model"
	"go-ml.dev/pkg/automl/model/hyperopt"
	"go-ml.dev/pkg/automl/preprocess"
	"go-ml.dev/pkg/automl/store"
	"go-ml.dev/pkg/automl/tables"
	"go-ml.dev/pkg/iokit"
	"go.uber.org/zap"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
)

var trainFlags struct {
	target     string
	targetType string
	metric     string
	name       string
	export     string
	minIter    int
	maxTime    string
	params     []string
}

var trainCmd = &cobra.Command{
	Use:   "train <file.csv>",
	Short: "Search the best model for the target column",
	Long: `Encodes the dataset, runs the training cycle and prints the attempts ranked
by the primary metric. The first interrupt stops the search after the current
iteration, the second one aborts it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTrain,
}

func init() {
	f := trainCmd.Flags()
	f.StringVarP(&trainFlags.target, "target", "t", "", "Target column")
	f.StringVar(&trainFlags.targetType, "type", "", "Target type: regression, binary or multiclass (detected if empty)")
	f.StringVarP(&trainFlags.metric, "metric", "m", "", "Primary metric")
	f.StringVarP(&trainFlags.name, "name", "n", "", "Save the best model under this name")
	f.StringVar(&trainFlags.export, "export", "", "Write the best model into this file")
	f.IntVar(&trainFlags.minIter, "min-iterations", -1, "Minimal count of iterations")
	f.StringVar(&trainFlags.maxTime, "max-time", "", "Time after which no new iteration starts, like 10m")
	f.StringArrayVarP(&trainFlags.params, "param", "p", nil, "Hyper-parameter override name=value")
}

/*
parseParams reads name=value pairs, booleans are given as true or false
*/
func parseParams(a []string) (hyperopt.Params, error) {
	p := hyperopt.Params{}
	for _, s := range a {
		kv := strings.SplitN(s, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("bad hyper-parameter `%v`, expected name=value", s)
		}
		k, v := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		switch strings.ToLower(v) {
		case "true":
			p[k] = 1
			continue
		case "false", "auto":
			p[k] = 0
			continue
		}
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("bad value of hyper-parameter `%v`: %w", k, err)
		}
		p[k] = x
	}
	return p, nil
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.Data.File = args[0]
	}
	if trainFlags.target != "" {
		cfg.Data.Target = trainFlags.target
	}
	if trainFlags.targetType != "" {
		cfg.Data.TargetType = trainFlags.targetType
	}
	if trainFlags.metric != "" {
		cfg.Search.PrimaryMetric = trainFlags.metric
	}
	if trainFlags.minIter >= 0 {
		cfg.Search.MinIterations = trainFlags.minIter
	}
	if trainFlags.maxTime != "" {
		cfg.Search.MaxTrainingTime = trainFlags.maxTime
	}
	p, err := parseParams(trainFlags.params)
	if err != nil {
		return err
	}
	if cfg.Hyperparameters, err = cfg.Hyperparameters.With(p); err != nil {
		return err
	}
	if err = cfg.Validate(); err != nil {
		return err
	}
	if cfg.Data.File == "" || cfg.Data.Target == "" {
		return fmt.Errorf("data file and target column are required")
	}

	var st *store.Store
	if trainFlags.name != "" {
		if st, err = store.Open(cfg.Store.Path); err != nil {
			return err
		}
		defer st.Close()
		if ok, err := st.Exists(context.Background(), trainFlags.name); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("`%v`: %w", trainFlags.name, store.ErrNameExists)
		}
	}

	t, err := tables.ReadCSVFile(cfg.Data.File)
	if err != nil {
		return err
	}
	if !t.Has(cfg.Data.Target) {
		return fmt.Errorf("`%v`: %w", cfg.Data.Target, preprocess.ErrUnknownColumn)
	}
	tt, err := cfg.TargetType(t.Col(cfg.Data.Target))
	if err != nil {
		return err
	}
	r, err := preprocess.Encode(t, cfg.Data.Target, tt, cfg.Data.Split, cfg.Data.Seed)
	if err != nil {
		return err
	}
	logger.Info("data encoded",
		zap.String("file", cfg.Data.File),
		zap.String("target", cfg.Data.Target),
		zap.String("type", tt.String()),
		zap.Int("features", len(r.Features)),
		zap.Strings("dropped", r.Dropped),
		zap.Int("discarded", r.Discarded))

	tr, err := cfg.Training()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	tr.Logger = logger
	tr.Verbose = func(s string) { fmt.Fprintln(out, s) }
	if trainFlags.export != "" {
		tr.ModelFile = iokit.File(trainFlags.export)
	}
	c, err := tr.NewCycle(r)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for i := 0; ; i++ {
			select {
			case <-sigCh:
				if i == 0 {
					logger.Info("stopping after the current iteration")
					c.Stop()
				} else {
					cancel()
					return
				}
			case <-c.Done():
				return
			}
		}
	}()

	if err = c.Start(ctx); err != nil {
		return err
	}
	report, err := c.Wait()
	if report == nil {
		return err
	}
	defer report.Release()
	printReport(out, report)
	if err != nil {
		return err
	}
	if st != nil {
		e := store.NewEntry(trainFlags.name, report, r.Params)
		s, ok := report.Model.(store.Saver)
		if !ok {
			return fmt.Errorf("model %T can not be saved", report.Model)
		}
		if err = st.Save(context.Background(), e, s); err != nil {
			return err
		}
		fmt.Fprintf(out, "saved as %v\n", trainFlags.name)
	}
	return nil
}

func printReport(w io.Writer, r *model.Report) {
	fmt.Fprintf(w, "best iteration %d of %d in %v\n", r.TheBest, len(r.History), r.Elapsed.Round(time.Millisecond))
	tw := newTable(w)
	fmt.Fprintf(tw, "ITERATION\tTRAIN\tVALIDATION\tEPOCHS\tLR\tDROPOUT\tL1\tHIDDEN\n")
	for _, a := range r.Ranked() {
		hp := a.Hyperparameters
		fmt.Fprintf(tw, "%d\t%.5f\t%.5f\t%d\t%g\t%g\t%g\t%d\n",
			a.Iteration, a.Train[r.Primary], a.Validation[r.Primary], a.EpochsTrained,
			hp.LearningRate, hp.DropoutRate, hp.L1Penalty, a.Width)
	}
	tw.Flush()
	fmt.Fprintf(w, "train:      %v\n", r.Train)
	fmt.Fprintf(w, "validation: %v\n", r.Validation)
	fmt.Fprintf(w, "test:       %v\n", r.Test)
}
