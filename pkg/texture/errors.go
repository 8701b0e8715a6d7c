package texture

import "github.com/cockroachdb/errors"

var (
	// ErrNameInUse indicates a request for an existing name with a
	// different source, without the Overwrite flag.
	ErrNameInUse = errors.New("texture: name in use")

	// ErrDecode indicates source bytes that do not decode. The registry
	// substitutes the placeholder and logs instead of returning it.
	ErrDecode = errors.New("texture: decode failed")

	// ErrInvalidHandle indicates a handle to a freed texture.
	ErrInvalidHandle = errors.New("texture: invalid handle")

	// ErrTableFull indicates MaxTextures live textures.
	ErrTableFull = errors.New("texture: too many textures")

	// ErrBadRequest indicates a malformed Request.
	ErrBadRequest = errors.New("texture: bad request")
)
