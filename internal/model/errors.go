package model

import "errors"

// Error taxonomy shared by every stage of the pipeline. Errors returned by
// the scanner, decoders and attachment writer wrap exactly one of these.
var (
	// ErrAccess covers missing source directories, unreadable message files
	// and files that vanished between enumeration and read.
	ErrAccess = errors.New("filesystem access error")

	// ErrDecode means a container could not be parsed into a message.
	ErrDecode = errors.New("decode error")

	// ErrAttachmentWrite means an attachment payload could not be stored.
	ErrAttachmentWrite = errors.New("attachment write error")
)
