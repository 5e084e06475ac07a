package image

// CapturedImage is a raw capture handed over by the camera layer. Consumed
// exactly once by Normalize.
type CapturedImage struct {
	Data     []byte
	MIMEType string
	Source   string // capture method, informational
}

// UploadableDocument is a size/format-bounded JPEG ready for start_session.
type UploadableDocument struct {
	Data     []byte
	Filename string
	MIMEType string
	Width    int
	Height   int
	// Reencoded records whether the bytes were resized/re-encoded or are the
	// original payload under a normalized wrapper.
	Reencoded bool
}

// Options bounds the normalization output.
type Options struct {
	MaxWidth  int
	MaxHeight int
	Quality   float64 // JPEG quality in (0,1]
}
