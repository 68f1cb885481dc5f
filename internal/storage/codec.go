package storage

import "github.com/sawpanic/marketdataplane/internal/domain"

// Codec serializes the hot-store value shapes. A separate seam (rather than
// calling encoding/json inline everywhere) so a future wire format swap
// touches one file.
type Codec interface {
	EncodeObservation(domain.Observation) ([]byte, error)
	DecodeObservation([]byte) (domain.Observation, error)
	EncodeSeriesDescriptor(domain.SeriesDescriptor) ([]byte, error)
	EncodeCycleReport(domain.CycleReport) ([]byte, error)
	DecodeCycleReport([]byte) (domain.CycleReport, error)
	EncodeCorrelationSnapshot(domain.CorrelationSnapshot) ([]byte, error)
	DecodeCorrelationSnapshot([]byte) (domain.CorrelationSnapshot, error)
}

type jsonCodec struct{}

func (jsonCodec) EncodeObservation(o domain.Observation) ([]byte, error) { return encodeJSON(o) }
func (jsonCodec) DecodeObservation(b []byte) (domain.Observation, error) {
	var o domain.Observation
	err := decodeJSON(b, &o)
	return o, err
}
func (jsonCodec) EncodeSeriesDescriptor(d domain.SeriesDescriptor) ([]byte, error) {
	return encodeJSON(d)
}
func (jsonCodec) EncodeCycleReport(r domain.CycleReport) ([]byte, error) { return encodeJSON(r) }
func (jsonCodec) DecodeCycleReport(b []byte) (domain.CycleReport, error) {
	var r domain.CycleReport
	err := decodeJSON(b, &r)
	return r, err
}
func (jsonCodec) EncodeCorrelationSnapshot(s domain.CorrelationSnapshot) ([]byte, error) {
	return encodeJSON(s)
}
func (jsonCodec) DecodeCorrelationSnapshot(b []byte) (domain.CorrelationSnapshot, error) {
	var s domain.CorrelationSnapshot
	err := decodeJSON(b, &s)
	return s, err
}
