package resource

import (
	"encoding/json"
	"slices"

	"github.com/garrettladley/whoopweb/internal/client/whoop"
	"github.com/garrettladley/whoopweb/internal/service/proxy"
	go_json "github.com/goccy/go-json"
)

const (
	Recovery        = "recovery"
	Sleep           = "sleep"
	Cycles          = "cycles"
	BodyMeasurement = "body_measurement"
)

// Endpoint is a WHOOP resource plus the pure transform applied to its records.
type Endpoint interface {
	Spec() proxy.EndpointSpec

	// Paginated reports whether the endpoint accepts list parameters.
	Paginated() bool

	// Render decodes the raw body and transforms it. Decode failures are *proxy.APIError.
	Render(raw json.RawMessage) (any, error)
}

type endpoint[T, V any] struct {
	spec      proxy.EndpointSpec
	paginated bool
	transform func(T) V
}

func (e endpoint[T, V]) Spec() proxy.EndpointSpec { return e.spec }

func (e endpoint[T, V]) Paginated() bool { return e.paginated }

func (e endpoint[T, V]) Render(raw json.RawMessage) (any, error) {
	var record T
	if err := go_json.Unmarshal(raw, &record); err != nil {
		return nil, &proxy.APIError{Kind: proxy.MalformedResponse, Endpoint: e.spec.Name, Err: err}
	}
	return e.transform(record), nil
}

var endpoints = map[string]Endpoint{
	Recovery: endpoint[whoop.PaginatedResponse[whoop.Recovery], Series[ScorePoint]]{
		spec:      proxy.EndpointSpec{Name: Recovery, Path: "/v2/recovery", RequiredScope: "read:recovery"},
		paginated: true,
		transform: recoveryPoints,
	},
	Sleep: endpoint[whoop.PaginatedResponse[whoop.Sleep], Series[SleepPoint]]{
		spec:      proxy.EndpointSpec{Name: Sleep, Path: "/v2/activity/sleep", RequiredScope: "read:sleep"},
		paginated: true,
		transform: sleepPoints,
	},
	Cycles: endpoint[whoop.PaginatedResponse[whoop.Cycle], Series[ScorePoint]]{
		spec:      proxy.EndpointSpec{Name: Cycles, Path: "/v2/cycle", RequiredScope: "read:cycles"},
		paginated: true,
		transform: strainPoints,
	},
	BodyMeasurement: endpoint[whoop.BodyMeasurement, BodySummary]{
		spec:      proxy.EndpointSpec{Name: BodyMeasurement, Path: "/v2/user/measurement/body", RequiredScope: "read:body_measurement"},
		transform: bodySummary,
	},
}

func Lookup(name string) (Endpoint, bool) {
	e, ok := endpoints[name]
	return e, ok
}

// Names lists the registered endpoints in sorted order.
func Names() []string {
	names := make([]string, 0, len(endpoints))
	for name := range endpoints {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
