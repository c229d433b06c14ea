package ocr

import "image"

// InputOption mutates a recognition input before submission.
type InputOption func(*Input)

// WithLanguages sets language hints on the input.
func WithLanguages(langs ...string) InputOption {
	return func(in *Input) { in.Languages = append([]string(nil), langs...) }
}

// WithID sets the caller-provided identifier on the input.
func WithID(id string) InputOption {
	return func(in *Input) { in.ID = id }
}

// WithMetadata sets provider-specific metadata for the input.
func WithMetadata(metadata map[string]string) InputOption {
	return func(in *Input) {
		if len(metadata) == 0 {
			in.Metadata = nil
			return
		}
		in.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			in.Metadata[k] = v
		}
	}
}

// NewInput builds an Input for a decoded image with the given options
// applied in order.
func NewInput(img image.Image, opts ...InputOption) Input {
	in := Input{Image: img}
	for _, opt := range opts {
		opt(&in)
	}
	return in
}
