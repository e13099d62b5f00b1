package ir

// Version constants for the wire and file formats.
const (
	// WireVersion is the TCP frame format version.
	WireVersion = "1"

	// FileVersion is the transaction file format version.
	FileVersion = "1"
)
