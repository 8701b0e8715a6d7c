// Package texture is the resource registry that sits on top of the cache.
//
// A Registry keeps one descriptor per texture, identified by owner, name
// and player colors. The descriptor records where the source lives and how
// to regenerate the pixels; the pixels themselves live in the cache and may
// be evicted at any time. Every access goes through the registry, which
// notices an evicted entry, re-reads the source through its Loader,
// verifies the source checksum and decodes again.
//
// # Loading
//
//	h, err := reg.FindOrLoad(texture.Request{
//		Name:   "progs/player.mdl:frame0",
//		Owner:  modelID,
//		Source: texture.Source{File: "progs/player.mdl", Offset: 0x54},
//		Format: texture.Indexed,
//		Width:  296, Height: 194,
//		Flags:  texture.Mipmap | texture.FullBright,
//		Colors: &texture.Colors{Shirt: 4, Pants: 12},
//	})
//
// A second request with the same identity returns the same handle. Requests
// that differ only in colors are separate textures.
//
// # Degradation
//
// When the cache cannot hold the pixels the registry keeps an uncached copy
// and logs it. When the source cannot be read or decoded the request gets a
// placeholder checkerboard and a warning, never an error. Only fatal memory
// errors escape, and those also go to the fatal handler.
//
// # Frames
//
// MarkUsed records the frame a texture was last drawn in and touches its
// cache entry. CollectUnused counts textures idle for a number of frames;
// ReleaseUnused drops their pixels while keeping the descriptors.
package texture
