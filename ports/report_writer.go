package ports

import (
	"context"
	"io"

	"goequity/domain/run"
)

// ReportWriter renders a stored analysis into an export format
type ReportWriter interface {
	// Write renders the record to w
	Write(ctx context.Context, record *run.Record, w io.Writer) error

	// ContentType is the MIME type of the rendered output
	ContentType() string

	// Extension is the file extension, including the leading dot
	Extension() string
}
