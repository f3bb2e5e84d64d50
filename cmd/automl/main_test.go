package main

import (
	"bytes"
	"fmt"
	"github.com/spf13/cobra"
	"go-ml.dev/pkg/automl/preprocess"
	"go-ml.dev/pkg/automl/store"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
	"gotest.tools/assert"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func dataset(t *testing.T, rows int) string {
	rng := rand.New(rand.NewSource(5))
	bf := &bytes.Buffer{}
	fmt.Fprintln(bf, "x,color,label")
	for i := 0; i < rows; i++ {
		x := rng.NormFloat64()
		label := "no"
		if x > 0 {
			label = "yes"
		}
		fmt.Fprintf(bf, "%.4f,%v,%v\n", x, []string{"red", "green"}[i%2], label)
	}
	path := filepath.Join(t.TempDir(), "data.csv")
	assert.NilError(t, os.WriteFile(path, bf.Bytes(), 0644))
	return path
}

func setup(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	logger = zap.NewNop()
	dir := t.TempDir()
	configPath = filepath.Join(dir, "automl.yaml")
	storePath = filepath.Join(dir, "models.db")
	out := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	return cmd, out
}

func Test_ParseParams(t *testing.T) {
	p, err := parseParams([]string{"dropout_rate=0.2", "early_stopping=false", "hidden_dim = auto", "epochs=7"})
	assert.NilError(t, err)
	assert.Equal(t, p.Get("dropout_rate", 0), 0.2)
	assert.Equal(t, p.Get("early_stopping", 1), 0.0)
	assert.Equal(t, p.Get("hidden_dim", 1), 0.0)
	assert.Equal(t, p.Get("epochs", 0), 7.0)
	_, err = parseParams([]string{"epochs"})
	assert.ErrorContains(t, err, "name=value")
	_, err = parseParams([]string{"epochs=many"})
	assert.ErrorContains(t, err, "epochs")
}

func Test_Inspect(t *testing.T) {
	cmd, out := setup(t)
	path := dataset(t, 20)
	inspectTarget = "label"
	defer func() { inspectTarget = "" }()
	assert.NilError(t, runInspect(cmd, []string{path}))
	s := out.String()
	assert.Assert(t, strings.Contains(s, "rows: 20"), s)
	assert.Assert(t, strings.Contains(s, "target label: binary"), s)
	inspectTarget = "price"
	assert.Assert(t, xerrors.Is(runInspect(cmd, []string{path}), preprocess.ErrUnknownColumn))
}

func Test_TrainSaveListDelete(t *testing.T) {
	cmd, out := setup(t)
	path := dataset(t, 80)
	trainFlags.target = "label"
	trainFlags.name = "first"
	trainFlags.minIter = 2
	trainFlags.maxTime = "0s"
	trainFlags.params = []string{"epochs=3"}
	defer func() { trainFlags.target, trainFlags.name, trainFlags.minIter, trainFlags.maxTime, trainFlags.params = "", "", -1, "", nil }()
	assert.NilError(t, runTrain(cmd, []string{path}))
	s := out.String()
	assert.Assert(t, strings.Contains(s, "of 2"), s)
	assert.Assert(t, strings.Contains(s, "saved as first"), s)

	err := runTrain(cmd, []string{path})
	assert.Assert(t, xerrors.Is(err, store.ErrNameExists))

	out.Reset()
	assert.NilError(t, listModels(cmd, nil))
	assert.Assert(t, strings.Contains(out.String(), "first"), out.String())
	assert.Assert(t, strings.Contains(out.String(), "binary"), out.String())

	out.Reset()
	assert.NilError(t, deleteModels(cmd, []string{"first"}))
	assert.Assert(t, strings.Contains(out.String(), "deleted first"))
	assert.Assert(t, xerrors.Is(deleteModels(cmd, []string{"first"}), store.ErrNotFound))
}

func Test_TrainRequiresTarget(t *testing.T) {
	cmd, _ := setup(t)
	trainFlags.minIter = -1
	assert.ErrorContains(t, runTrain(cmd, []string{dataset(t, 10)}), "required")
}
