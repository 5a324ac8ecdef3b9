// Package faults defines the error taxonomy shared by the monitoring pipeline.
package faults

import (
	"errors"
	"fmt"
	"time"
)

// DataQualityFault marks a sample that cannot be ingested (out of order, malformed).
type DataQualityFault struct {
	Pair   string
	Time   time.Time
	Reason string
}

func (f *DataQualityFault) Error() string {
	return fmt.Sprintf("data quality fault for %s at %s: %s", f.Pair, f.Time.UTC().Format(time.RFC3339), f.Reason)
}

// ConfigValidationFault reports a rejected watchlist entry.
type ConfigValidationFault struct {
	Index  int
	Pair   string
	Field  string
	Reason string
}

func (f *ConfigValidationFault) Error() string {
	target := fmt.Sprintf("entry %d", f.Index)
	if f.Pair != "" {
		target = fmt.Sprintf("entry %d (%s)", f.Index, f.Pair)
	}
	if f.Field == "" {
		return fmt.Sprintf("invalid watchlist %s: %s", target, f.Reason)
	}
	return fmt.Sprintf("invalid watchlist %s: %s %s", target, f.Field, f.Reason)
}

// TransportFault wraps a notification delivery failure.
type TransportFault struct {
	Channel string
	Pair    string
	Err     error
}

func (f *TransportFault) Error() string {
	return fmt.Sprintf("deliver %s notification via %s: %v", f.Pair, f.Channel, f.Err)
}

func (f *TransportFault) Unwrap() error { return f.Err }

// SourceFault wraps a price fetch failure. Pair is empty when the whole batch failed.
type SourceFault struct {
	Pair string
	Err  error
}

func (f *SourceFault) Error() string {
	if f.Pair == "" {
		return fmt.Sprintf("price source: %v", f.Err)
	}
	return fmt.Sprintf("price source %s: %v", f.Pair, f.Err)
}

func (f *SourceFault) Unwrap() error { return f.Err }

// IsDataQuality reports whether err carries a DataQualityFault.
func IsDataQuality(err error) bool {
	var target *DataQualityFault
	return errors.As(err, &target)
}

// IsConfigValidation reports whether err carries a ConfigValidationFault.
func IsConfigValidation(err error) bool {
	var target *ConfigValidationFault
	return errors.As(err, &target)
}

// IsTransport reports whether err carries a TransportFault.
func IsTransport(err error) bool {
	var target *TransportFault
	return errors.As(err, &target)
}

// IsSource reports whether err carries a SourceFault.
func IsSource(err error) bool {
	var target *SourceFault
	return errors.As(err, &target)
}
