// Package artifact loads the fitted scalers and models required by the
// hybrid forecaster from a directory of versioned JSON artifacts. Artifacts
// are schema checked on load so a stale or mismatched file fails fast
// instead of succeeding with wrong shapes.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/evfleet/sohcast/fault"
	"github.com/evfleet/sohcast/featurestore"
	"github.com/evfleet/sohcast/models"
	"github.com/goccy/go-json"
)

// SchemaVersion is the artifact envelope version this loader understands.
const SchemaVersion = 1

// Fixed artifact file identities within the artifact directory.
const (
	ConfigFile          = "features.json"
	SequenceModelFile   = "sequence_model.json"
	ResidualGPRFile     = "residual_gpr.json"
	CapacityScalerFile  = "ca_scaler.json"
	FeatureScalerFile   = "f_scaler.json"
	ExogenousScalerFile = "x2_scaler.json"
)

// Envelope kinds.
const (
	KindStandardScaler = "standard_scaler"
	KindDenseSequence  = "dense_sequence"
	KindGPR            = "gpr"
)

// exogenous residual input is (Month, Tmax_ave, Tmin_ave)
const exogenousDims = 3

// Bundle holds everything the forecasters consume: the feature configuration,
// three independently fit scalers, the sequence model, and the residual GP.
// Immutable once loaded.
type Bundle struct {
	UseFeatures   []string
	NKnownDefault int

	CapacityScaler  *models.StandardScaler
	FeatureScaler   *models.StandardScaler
	ExogenousScaler *models.StandardScaler
	SequenceModel   *models.DenseNetwork
	ResidualModel   *models.GPR
}

type envelope struct {
	SchemaVersion int                    `json:"schema_version"`
	Kind          string                 `json:"kind"`
	Scaler        *models.StandardScaler `json:"scaler,omitempty"`
	Network       *models.DenseNetwork   `json:"network,omitempty"`
	GPR           *models.GPRParams      `json:"gpr,omitempty"`
}

// Load reads the feature config and the five artifacts from dir, validating
// that the feature table carries the temperature columns the residual model
// needs and that every artifact shape is consistent with use_features.
func Load(dir string, table *featurestore.Table) (*Bundle, error) {
	cfg, err := LoadConfig(filepath.Join(dir, ConfigFile))
	if err != nil {
		return nil, err
	}

	if missing := table.MissingColumns(featurestore.ColTmax, featurestore.ColTmin); len(missing) > 0 {
		return nil, fault.New(fault.KindSchemaMismatch,
			"feature table is missing columns needed by the residual model: %v", missing)
	}

	b := &Bundle{
		UseFeatures:   cfg.UseFeatures,
		NKnownDefault: cfg.NKnownDefault,
	}

	scalerDims := map[string]struct {
		file string
		dims int
		dst  **models.StandardScaler
	}{
		"capacity":  {CapacityScalerFile, 1, &b.CapacityScaler},
		"feature":   {FeatureScalerFile, len(cfg.UseFeatures), &b.FeatureScaler},
		"exogenous": {ExogenousScalerFile, exogenousDims, &b.ExogenousScaler},
	}
	for name, sc := range scalerDims {
		scaler, err := loadScaler(filepath.Join(dir, sc.file))
		if err != nil {
			return nil, err
		}
		if scaler.Dims() != sc.dims {
			return nil, fault.New(fault.KindSchemaMismatch,
				"%s scaler %s has %d columns, expected %d", name, sc.file, scaler.Dims(), sc.dims)
		}
		*sc.dst = scaler
	}

	network, err := loadSequenceModel(filepath.Join(dir, SequenceModelFile))
	if err != nil {
		return nil, err
	}
	if network.InputDims != 1+len(cfg.UseFeatures) {
		return nil, fault.New(fault.KindSchemaMismatch,
			"sequence model expects %d input columns but use_features implies %d",
			network.InputDims, 1+len(cfg.UseFeatures))
	}
	b.SequenceModel = network

	residual, err := loadResidualGPR(filepath.Join(dir, ResidualGPRFile))
	if err != nil {
		return nil, err
	}
	b.ResidualModel = residual

	return b, nil
}

func readEnvelope(path, wantKind string) (*envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fault.Wrap(fault.KindNotFound, err, "artifact %s", path)
		}
		return nil, fmt.Errorf("unable to read artifact %s, %w", path, err)
	}
	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fault.Wrap(fault.KindSchemaMismatch, err, "unable to decode artifact %s", path)
	}
	if e.SchemaVersion != SchemaVersion {
		return nil, fault.New(fault.KindSchemaMismatch,
			"artifact %s has schema version %d, loader understands %d", path, e.SchemaVersion, SchemaVersion)
	}
	if e.Kind != wantKind {
		return nil, fault.New(fault.KindSchemaMismatch,
			"artifact %s has kind %q, expected %q", path, e.Kind, wantKind)
	}
	return &e, nil
}

func loadScaler(path string) (*models.StandardScaler, error) {
	e, err := readEnvelope(path, KindStandardScaler)
	if err != nil {
		return nil, err
	}
	if e.Scaler == nil {
		return nil, fault.New(fault.KindSchemaMismatch, "artifact %s has no scaler payload", path)
	}
	if err := e.Scaler.Validate(); err != nil {
		return nil, fault.Wrap(fault.KindSchemaMismatch, err, "artifact %s", path)
	}
	return e.Scaler, nil
}

func loadSequenceModel(path string) (*models.DenseNetwork, error) {
	e, err := readEnvelope(path, KindDenseSequence)
	if err != nil {
		return nil, err
	}
	if e.Network == nil {
		return nil, fault.New(fault.KindSchemaMismatch, "artifact %s has no network payload", path)
	}
	if err := e.Network.Validate(); err != nil {
		return nil, fault.Wrap(fault.KindSchemaMismatch, err, "artifact %s", path)
	}
	return e.Network, nil
}

func loadResidualGPR(path string) (*models.GPR, error) {
	e, err := readEnvelope(path, KindGPR)
	if err != nil {
		return nil, err
	}
	if e.GPR == nil {
		return nil, fault.New(fault.KindSchemaMismatch, "artifact %s has no gpr payload", path)
	}
	gpr, err := models.NewGPRFromParams(*e.GPR)
	if err != nil {
		return nil, fault.Wrap(fault.KindSchemaMismatch, err, "artifact %s", path)
	}
	if len(e.GPR.XTrain) > 0 && len(e.GPR.XTrain[0]) != exogenousDims {
		return nil, fault.New(fault.KindSchemaMismatch,
			"artifact %s residual inputs have %d columns, expected %d", path, len(e.GPR.XTrain[0]), exogenousDims)
	}
	return gpr, nil
}
