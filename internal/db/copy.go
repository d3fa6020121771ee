package db

import "github.com/jackc/pgx/v5"

// CopyRow is any record that knows its COPY column values.
type CopyRow interface {
	CopyValues() []any
}

// ChannelSource implements pgx.CopyFromSource by reading CopyRows from a
// channel. This provides natural backpressure between a file reader and the
// COPY writer, and lets the CSV and FHIR staging loaders share one source.
type ChannelSource struct {
	ch      <-chan CopyRow
	current CopyRow
	err     error
}

// NewChannelSource creates a CopyFromSource backed by a channel.
func NewChannelSource(ch <-chan CopyRow) *ChannelSource {
	return &ChannelSource{ch: ch}
}

// Next advances to the next row. Returns false when the channel is closed.
func (s *ChannelSource) Next() bool {
	row, ok := <-s.ch
	if !ok {
		return false
	}
	s.current = row
	return true
}

// Values returns the current row's values in COPY column order.
func (s *ChannelSource) Values() ([]any, error) {
	return s.current.CopyValues(), nil
}

// Err returns any error encountered during iteration.
func (s *ChannelSource) Err() error {
	return s.err
}

var _ pgx.CopyFromSource = (*ChannelSource)(nil)
