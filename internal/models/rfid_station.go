package models

import "strings"

// Station is a physical checkpoint in the fulfilment pipeline.
type Station string

const (
	StationEncoding              Station = "encoding"
	StationPacking               Station = "packing"
	StationDispatchVenue         Station = "dispatch-venue"
	StationRegistration          Station = "registration"
	StationGownIssue             Station = "gown-issue"
	StationGownReturn            Station = "gown-return"
	StationCertificateCollection Station = "certificate-collection"
	StationReturnHO              Station = "return-ho"
	StationAddressLabel          Station = "address-label"
	StationFinalDispatch         Station = "final-dispatch"
	StationHandover              Station = "handover"
)

// StationSequence is the expected order a tag travels through the pipeline.
var StationSequence = []Station{
	StationEncoding,
	StationPacking,
	StationDispatchVenue,
	StationRegistration,
	StationGownIssue,
	StationGownReturn,
	StationCertificateCollection,
	StationReturnHO,
	StationAddressLabel,
	StationFinalDispatch,
	StationHandover,
}

var stationIndex = func() map[Station]int {
	idx := make(map[Station]int, len(StationSequence))
	for i, s := range StationSequence {
		idx[s] = i
	}
	return idx
}()

// ParseStation resolves a station name. Unknown stations are rejected.
func ParseStation(raw string) (Station, bool) {
	s := Station(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := stationIndex[s]
	return s, ok
}

// Valid reports whether the station belongs to the closed station set.
func (s Station) Valid() bool {
	_, ok := stationIndex[s]
	return ok
}

// Position returns the station's index in StationSequence, or -1.
func (s Station) Position() int {
	if i, ok := stationIndex[s]; ok {
		return i
	}
	return -1
}

// StatusForStation maps a station to the lifecycle phase reached there.
func StatusForStation(s Station) TagStatus {
	switch s {
	case StationEncoding:
		return TagStatusEncoded
	case StationReturnHO:
		return TagStatusReturned
	case StationFinalDispatch:
		return TagStatusDispatched
	case StationCertificateCollection, StationHandover:
		return TagStatusDelivered
	default:
		return TagStatusScanned
	}
}

// Classification is a tag's position relative to a target station.
type Classification string

const (
	ClassOnTrackHere   Classification = "on-track-here"
	ClassAdvanced      Classification = "already-advanced-past"
	ClassNotYetArrived Classification = "not-yet-arrived"
)

// ClassifyForStation places a tag relative to target. Void tags have left the
// pipeline and count as advanced; delivered tags are advanced everywhere except
// the station they were delivered at. Otherwise sequence position decides.
func ClassifyForStation(status TagStatus, current, target Station) Classification {
	if status == TagStatusVoid {
		return ClassAdvanced
	}
	if current == target {
		return ClassOnTrackHere
	}
	if status == TagStatusDelivered {
		return ClassAdvanced
	}
	if current.Position() > target.Position() {
		return ClassAdvanced
	}
	return ClassNotYetArrived
}
