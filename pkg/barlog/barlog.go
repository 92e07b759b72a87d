// Package barlog persists finalized bars to a columnar record.
package barlog

import (
	"github.com/rxtech-lab/fxstream-trading/internal/types"
)

// Writer is the optional bar persistence sink. Records are append-only, one
// per finalized bar, in the same order bars enter the series.
type Writer interface {
	// Initialize sets up the writer, creating tables or files as needed.
	Initialize() error
	// Write appends a single finalized bar.
	Write(bar types.Bar) error
	// Finalize completes the writing process and returns the output path.
	Finalize() (outputPath string, err error)
	// Close releases any resources held by the writer.
	Close() error
	// GetOutputPath returns the configured output file path.
	GetOutputPath() string
}
