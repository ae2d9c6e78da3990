package models

import (
	"errors"
)

var (
	ErrNoOptions          = errors.New("no initialized model options")
	ErrTargetLenMismatch  = errors.New("target length does not match target rows")
	ErrNoTrainingMatrix   = errors.New("no training matrix")
	ErrNoTargetMatrix     = errors.New("no target matrix")
	ErrNoDesignMatrix     = errors.New("no design matrix for inference")
	ErrFeatureLenMismatch = errors.New("number of features does not match model dimensions")
	ErrUntrainedModel     = errors.New("model has not been trained yet")
	ErrNoTrainingRows     = errors.New("no training rows")
	ErrBadScaler          = errors.New("scaler mean and scale are inconsistent")
	ErrBadParams          = errors.New("serialized model parameters are inconsistent")
)
