package grpcclient

import "time"

// Scorer service methods. Requests and replies are protobuf well-known wrapper types so the
// server needs no generated stubs on our side.
const (
	ScorerService      = "wakeword.v1.ScorerService"
	PredictMethod      = "/" + ScorerService + "/Predict"
	ResetStateMethod   = "/" + ScorerService + "/ResetState"
	ModelIDHeader      = "x-model-id"
	SampleRateHeader   = "x-sample-rate"
	SampleFormatHeader = "x-sample-format"
)

// Client configuration defaults.
const (
	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second

	HealthCheckTimeout = 2 * time.Second
	PredictTimeout     = 2 * time.Second
	ResetTimeout       = 2 * time.Second
)
