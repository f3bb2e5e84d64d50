/*
Package store keeps trained models with their metadata and final metrics in a sqlite database
*/
package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/ulikunitz/xz"
	"go-ml.dev/pkg/automl/fu"
	"go-ml.dev/pkg/automl/model"
	"go-ml.dev/pkg/automl/model/hyperopt"
	"go-ml.dev/pkg/automl/model/metrics"
	"go-ml.dev/pkg/automl/model/mlp"
	"go-ml.dev/pkg/automl/preprocess"
	"go-ml.dev/pkg/zorros"
	"golang.org/x/xerrors"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"
)

var (
	ErrNameExists = xerrors.New("model name already exists")
	ErrNotFound   = xerrors.New("model is not found")
)

// DefaultFile is the database name in the user cache
const DefaultFile = "models.db"

/*
DefaultPath is the database path used when nothing is given
*/
func DefaultPath() string {
	return fu.ModelPath(DefaultFile)
}

/*
Metadata describes how the model was trained
*/
type Metadata struct {
	Target          string                `json:"target"`
	TargetType      preprocess.TargetType `json:"targetType"`
	PrimaryMetric   string                `json:"primaryMetric"`
	Features        []string              `json:"features"`
	EpochsTrained   int                   `json:"epochsTrained"`
	Iterations      int                   `json:"iterations"`
	BestIteration   int                   `json:"bestIteration"`
	Architecture    string                `json:"architecture,omitempty"`
	Hyperparameters hyperopt.Config       `json:"hyperparameters"`
	Encoding        *preprocess.Params    `json:"encoding,omitempty"`
}

/*
Results are final metrics of the model, non finite values are not kept
*/
type Results struct {
	Train      metrics.Values `json:"train"`
	Validation metrics.Values `json:"validation"`
	Test       metrics.Values `json:"test"`
}

/*
Entry is a saved model record
*/
type Entry struct {
	ID        string
	Name      string
	Timestamp time.Time
	Metadata  Metadata
	Results   Results
}

/*
NewEntry describes the report of a finished training cycle
*/
func NewEntry(name string, r *model.Report, p *preprocess.Params) *Entry {
	b := r.Best()
	e := &Entry{
		Name: name,
		Metadata: Metadata{
			PrimaryMetric:   r.Primary,
			Features:        r.Features,
			EpochsTrained:   b.EpochsTrained,
			Iterations:      len(r.History),
			BestIteration:   r.TheBest,
			Hyperparameters: b.Hyperparameters,
			Encoding:        p,
		},
		Results: Results{Train: r.Train, Validation: r.Validation, Test: r.Test},
	}
	if p != nil {
		e.Metadata.Target = p.Target
		e.Metadata.TargetType = p.TargetType
	}
	if n, ok := r.Model.(*mlp.Network); ok && !n.Released() {
		e.Metadata.Architecture = n.Summary().String()
	}
	return e
}

/*
Store is a database of saved models
*/
type Store struct {
	db   *sql.DB
	path string
}

/*
Open creates or opens the database
*/
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, zorros.Wrapf(err, "failed to create directory: %v", err.Error())
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, zorros.Wrapf(err, "failed to open database: %v", err.Error())
	}
	s := &Store{db: db, path: path}
	if err = s.initSchema(); err != nil {
		db.Close()
		return nil, zorros.Wrapf(err, "failed to initialize schema: %v", err.Error())
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS models (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		timestamp INTEGER NOT NULL,
		metadata_json TEXT NOT NULL,
		results_json TEXT NOT NULL,
		model BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_models_timestamp ON models(timestamp);`)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

/*
Saver is a model able to serialize itself
*/
type Saver interface {
	Save(io.Writer) error
}

/*
Save stores the model under a unique name, it fails with ErrNameExists if the name is taken.
The entry gets new ID and the current timestamp.
*/
func (s *Store) Save(ctx context.Context, e *Entry, m Saver) error {
	if e.Name == "" {
		return zorros.Errorf("model name is empty")
	}
	blob, err := compress(m)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return zorros.Wrapf(err, "failed to encode metadata: %v", err.Error())
	}
	results, err := json.Marshal(Results{finite(e.Results.Train), finite(e.Results.Validation), finite(e.Results.Test)})
	if err != nil {
		return zorros.Wrapf(err, "failed to encode results: %v", err.Error())
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return zorros.Trace(err)
	}
	defer tx.Rollback()
	var n int
	if err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM models WHERE name = ?`, e.Name).Scan(&n); err != nil {
		return zorros.Trace(err)
	}
	if n > 0 {
		return xerrors.Errorf("`%v`: %w", e.Name, ErrNameExists)
	}
	id, ts := uuid.New().String(), time.Now()
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO models (id, name, timestamp, metadata_json, results_json, model) VALUES (?, ?, ?, ?, ?, ?)`,
		id, e.Name, ts.UnixNano(), string(meta), string(results), blob); err != nil {
		return zorros.Wrapf(err, "failed to save model `%v`: %v", e.Name, err.Error())
	}
	if err = tx.Commit(); err != nil {
		return zorros.Trace(err)
	}
	e.ID, e.Timestamp = id, ts
	return nil
}

/*
Exists reports the name is taken
*/
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM models WHERE name = ?`, name).Scan(&n); err != nil {
		return false, zorros.Trace(err)
	}
	return n > 0, nil
}

/*
List returns all entries without models, the most recent first
*/
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, timestamp, metadata_json, results_json FROM models ORDER BY timestamp DESC, rowid DESC`)
	if err != nil {
		return nil, zorros.Trace(err)
	}
	defer rows.Close()
	r := []Entry{}
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		r = append(r, *e)
	}
	if err = rows.Err(); err != nil {
		return nil, zorros.Trace(err)
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scan(row scanner, extra ...interface{}) (*Entry, error) {
	var (
		e             Entry
		ts            int64
		meta, results string
	)
	if err := row.Scan(append([]interface{}{&e.ID, &e.Name, &ts, &meta, &results}, extra...)...); err != nil {
		return nil, err
	}
	e.Timestamp = time.Unix(0, ts)
	if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
		return nil, zorros.Wrapf(err, "malformed metadata of `%v`: %v", e.Name, err.Error())
	}
	if err := json.Unmarshal([]byte(results), &e.Results); err != nil {
		return nil, zorros.Wrapf(err, "malformed results of `%v`: %v", e.Name, err.Error())
	}
	return &e, nil
}

/*
Load returns the entry and its model
*/
func (s *Store) Load(ctx context.Context, name string) (*Entry, *mlp.Network, error) {
	var blob []byte
	e, err := scan(s.db.QueryRowContext(ctx,
		`SELECT id, name, timestamp, metadata_json, results_json, model FROM models WHERE name = ?`, name), &blob)
	if err == sql.ErrNoRows {
		return nil, nil, xerrors.Errorf("`%v`: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, nil, zorros.Trace(err)
	}
	net, err := decompress(blob)
	if err != nil {
		return nil, nil, err
	}
	return e, net, nil
}

/*
Delete removes the entry, it fails with ErrNotFound if there is no such name
*/
func (s *Store) Delete(ctx context.Context, name string) error {
	r, err := s.db.ExecContext(ctx, `DELETE FROM models WHERE name = ?`, name)
	if err != nil {
		return zorros.Trace(err)
	}
	if n, err := r.RowsAffected(); err != nil {
		return zorros.Trace(err)
	} else if n == 0 {
		return xerrors.Errorf("`%v`: %w", name, ErrNotFound)
	}
	return nil
}

func compress(m Saver) ([]byte, error) {
	bf := &bytes.Buffer{}
	w, err := xz.NewWriter(bf)
	if err != nil {
		return nil, zorros.Trace(err)
	}
	if err = m.Save(w); err != nil {
		return nil, zorros.Trace(err)
	}
	if err = w.Close(); err != nil {
		return nil, zorros.Wrapf(err, "failed to compress model: %v", err.Error())
	}
	return bf.Bytes(), nil
}

func decompress(blob []byte) (*mlp.Network, error) {
	r, err := xz.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, zorros.Wrapf(err, "failed to decompress model: %v", err.Error())
	}
	return mlp.Load(r)
}

func finite(v metrics.Values) metrics.Values {
	r := metrics.Values{}
	for k, x := range v {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			r[k] = x
		}
	}
	return r
}
