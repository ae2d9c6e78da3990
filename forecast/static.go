package forecast

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/evfleet/sohcast/artifact"
	"github.com/evfleet/sohcast/cache"
	"github.com/evfleet/sohcast/fault"
	"github.com/evfleet/sohcast/featurestore"
	"github.com/evfleet/sohcast/models"
	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/mat"
)

// StaticKind selects which static baseline regressor to use.
type StaticKind string

const (
	StaticSVR StaticKind = "svr"
	StaticGPR StaticKind = "gpr"
)

// the baselines train on the pooled rows of the first ten vehicle
// identifiers in sorted order
const staticTrainVehicles = 10

// StaticBaseline trains-once and caches-to-disk a direct feature to capacity
// regressor, then predicts each future index from that month's own features
// with no feedback loop. The train-or-load sequence for each kind runs inside
// a per-kind cache so concurrent first calls cannot duplicate training or
// corrupt the cache file.
type StaticBaseline struct {
	cacheDir string

	svrCache *cache.Cache[*StaticBundle]
	gprCache *cache.Cache[*StaticBundle]
}

// StaticBundle is a trained scaler plus regressor pair, either loaded from
// the disk cache or freshly trained.
type StaticBundle struct {
	Kind   StaticKind
	Scaler *models.StandardScaler

	svr *models.SVR
	gpr *models.GPR
}

// Predict applies the bundled regressor to already scaled features.
func (b *StaticBundle) Predict(x mat.Matrix) ([]float64, error) {
	switch b.Kind {
	case StaticSVR:
		return b.svr.Predict(x)
	case StaticGPR:
		return b.gpr.Predict(x)
	default:
		return nil, fault.New(fault.KindUnknownModel, "static baseline kind %q", string(b.Kind))
	}
}

// NewStaticBaseline creates a baseline manager persisting trained bundles
// under cacheDir.
func NewStaticBaseline(cacheDir string) *StaticBaseline {
	return &StaticBaseline{
		cacheDir: cacheDir,
		svrCache: cache.New[*StaticBundle](),
		gprCache: cache.New[*StaticBundle](),
	}
}

// EnsureTrained returns the trained bundle for kind, loading the disk cache
// if present or training and persisting it otherwise. Idempotent; later
// callers observe the process-cached bundle.
func (s *StaticBaseline) EnsureTrained(kind StaticKind, table *featurestore.Table, useFeatures []string) (*StaticBundle, error) {
	var c *cache.Cache[*StaticBundle]
	switch kind {
	case StaticSVR:
		c = s.svrCache
	case StaticGPR:
		c = s.gprCache
	default:
		return nil, fault.New(fault.KindUnknownModel, "static baseline kind %q", string(kind))
	}
	return c.GetOrInit(func() (*StaticBundle, error) {
		return s.trainOrLoad(kind, table, useFeatures)
	})
}

// Forecast predicts directly from the feature rows [nKnown, nKnown+H). Each
// predicted point depends only on that month's own features.
func (s *StaticBaseline) Forecast(b *StaticBundle, slice *featurestore.VehicleSlice, nKnown, maxH int) ([]float64, error) {
	c := slice.Capacity
	if len(c) <= nKnown {
		return nil, fault.New(fault.KindInsufficientHistory,
			"vehicle %d: %d known months is not enough for n_known=%d", slice.Vehicle, len(c), nKnown)
	}

	h := effectiveHorizon(maxH, len(c), nKnown)
	predicted := nanSeries(len(c))
	if h == 0 {
		return predicted, nil
	}

	_, nFeat := slice.Features.Dims()
	scaled, err := b.Scaler.Transform(slice.Features.Slice(nKnown, nKnown+h, 0, nFeat))
	if err != nil {
		return nil, err
	}
	yhat, err := b.Predict(scaled)
	if err != nil {
		return nil, err
	}
	copy(predicted[nKnown:nKnown+h], yhat)
	return predicted, nil
}

func (s *StaticBaseline) cachePath(kind StaticKind) string {
	return filepath.Join(s.cacheDir, string(kind)+"_static.json")
}

func (s *StaticBaseline) trainOrLoad(kind StaticKind, table *featurestore.Table, useFeatures []string) (*StaticBundle, error) {
	path := s.cachePath(kind)
	data, err := os.ReadFile(path)
	if err == nil {
		return decodeStaticBundle(path, data, kind)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("unable to read static model cache %s, %w", path, err)
	}

	b, err := train(kind, table, useFeatures)
	if err != nil {
		return nil, err
	}
	if err := s.persist(kind, b); err != nil {
		return nil, err
	}
	return b, nil
}

func train(kind StaticKind, table *featurestore.Table, useFeatures []string) (*StaticBundle, error) {
	if missing := table.MissingColumns(useFeatures...); len(missing) > 0 {
		return nil, fault.New(fault.KindSchemaMismatch,
			"feature table is missing configured feature columns %v", missing)
	}
	caIdx, _ := table.ColumnIndex(featurestore.ColCapacity)
	featIdx := make([]int, len(useFeatures))
	for i, name := range useFeatures {
		featIdx[i], _ = table.ColumnIndex(name)
	}

	vids := table.Vehicles()
	if len(vids) > staticTrainVehicles {
		vids = vids[:staticTrainVehicles]
	}
	trainSet := make(map[int]struct{}, len(vids))
	for _, vid := range vids {
		trainSet[vid] = struct{}{}
	}

	var xRows [][]float64
	var y []float64
	for _, row := range table.Rows() {
		if _, exists := trainSet[row.Vehicle]; !exists {
			continue
		}
		if math.IsNaN(row.Values[caIdx]) {
			continue
		}
		feats := make([]float64, len(featIdx))
		usable := true
		for i, idx := range featIdx {
			v := row.Values[idx]
			if math.IsNaN(v) {
				usable = false
				break
			}
			feats[i] = v
		}
		if !usable {
			continue
		}
		xRows = append(xRows, feats)
		y = append(y, row.Values[caIdx])
	}
	if len(xRows) == 0 {
		return nil, fault.New(fault.KindInsufficientHistory,
			"no usable training rows among the first %d vehicles", staticTrainVehicles)
	}

	x := mat.NewDense(len(xRows), len(useFeatures), nil)
	for i, row := range xRows {
		x.SetRow(i, row)
	}
	yMx := mat.NewDense(len(y), 1, y)

	scaler := models.FitStandardScaler(x)
	xScaled, err := scaler.Transform(x)
	if err != nil {
		return nil, err
	}

	b := &StaticBundle{Kind: kind, Scaler: scaler}
	switch kind {
	case StaticSVR:
		svr, err := models.NewSVR(&models.SVROptions{C: 10.0, Epsilon: 0.2})
		if err != nil {
			return nil, err
		}
		if err := svr.Fit(xScaled, yMx); err != nil {
			return nil, fmt.Errorf("unable to fit static svr, %w", err)
		}
		b.svr = svr
	case StaticGPR:
		gpr, err := models.NewGPR(&models.GPROptions{
			RBFLengthScale: 5.0,
			WhiteNoise:     1.0,
			NormalizeY:     true,
		})
		if err != nil {
			return nil, err
		}
		if err := gpr.Fit(xScaled, yMx); err != nil {
			return nil, fmt.Errorf("unable to fit static gpr, %w", err)
		}
		b.gpr = gpr
	default:
		return nil, fault.New(fault.KindUnknownModel, "static baseline kind %q", string(kind))
	}
	return b, nil
}

type staticEnvelope struct {
	SchemaVersion int                    `json:"schema_version"`
	Kind          string                 `json:"kind"`
	Scaler        *models.StandardScaler `json:"scaler"`
	SVR           *models.SVRParams      `json:"svr,omitempty"`
	GPR           *models.GPRParams      `json:"gpr,omitempty"`
}

func staticEnvelopeKind(kind StaticKind) string {
	return "static_" + string(kind)
}

func (s *StaticBaseline) persist(kind StaticKind, b *StaticBundle) error {
	e := staticEnvelope{
		SchemaVersion: artifact.SchemaVersion,
		Kind:          staticEnvelopeKind(kind),
		Scaler:        b.Scaler,
	}
	switch kind {
	case StaticSVR:
		params, err := b.svr.Params()
		if err != nil {
			return err
		}
		e.SVR = &params
	case StaticGPR:
		params, err := b.gpr.Params()
		if err != nil {
			return err
		}
		e.GPR = &params
	}

	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode static model cache, %w", err)
	}

	if err := os.MkdirAll(s.cacheDir, 0o755); err != nil {
		return fmt.Errorf("unable to create static model cache dir, %w", err)
	}
	// write through a temp file so a crash mid-write cannot leave a
	// truncated cache behind
	tmp, err := os.CreateTemp(s.cacheDir, string(kind)+"_static_*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.cachePath(kind))
}

func decodeStaticBundle(path string, data []byte, kind StaticKind) (*StaticBundle, error) {
	var e staticEnvelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fault.Wrap(fault.KindSchemaMismatch, err, "unable to decode static model cache %s", path)
	}
	if e.SchemaVersion != artifact.SchemaVersion {
		return nil, fault.New(fault.KindSchemaMismatch,
			"static model cache %s has schema version %d, loader understands %d", path, e.SchemaVersion, artifact.SchemaVersion)
	}
	if e.Kind != staticEnvelopeKind(kind) {
		return nil, fault.New(fault.KindSchemaMismatch,
			"static model cache %s has kind %q, expected %q", path, e.Kind, staticEnvelopeKind(kind))
	}
	if e.Scaler == nil {
		return nil, fault.New(fault.KindSchemaMismatch, "static model cache %s has no scaler", path)
	}
	if err := e.Scaler.Validate(); err != nil {
		return nil, fault.Wrap(fault.KindSchemaMismatch, err, "static model cache %s", path)
	}

	b := &StaticBundle{Kind: kind, Scaler: e.Scaler}
	switch kind {
	case StaticSVR:
		if e.SVR == nil {
			return nil, fault.New(fault.KindSchemaMismatch, "static model cache %s has no svr payload", path)
		}
		svr, err := models.NewSVRFromParams(*e.SVR)
		if err != nil {
			return nil, fault.Wrap(fault.KindSchemaMismatch, err, "static model cache %s", path)
		}
		b.svr = svr
	case StaticGPR:
		if e.GPR == nil {
			return nil, fault.New(fault.KindSchemaMismatch, "static model cache %s has no gpr payload", path)
		}
		gpr, err := models.NewGPRFromParams(*e.GPR)
		if err != nil {
			return nil, fault.Wrap(fault.KindSchemaMismatch, err, "static model cache %s", path)
		}
		b.gpr = gpr
	}
	return b, nil
}
