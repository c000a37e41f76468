package render

import (
	"net/url"
	"path"
	"strings"

	"github.com/natikgadzhi/notopress/internal/asset"
)

// AssetIndex answers whether an image source has a local copy.
type AssetIndex struct {
	paths    map[string]struct{}
	byObject map[string]string
}

// NewAssetIndex indexes content-root relative paths of the form
// {assetDir}/{parentID}/{objectID}.{ext}.
func NewAssetIndex(paths []string) *AssetIndex {
	ix := &AssetIndex{
		paths:    make(map[string]struct{}, len(paths)),
		byObject: make(map[string]string, len(paths)),
	}
	for _, p := range paths {
		ix.paths[p] = struct{}{}
		object := strings.TrimSuffix(path.Base(p), path.Ext(p))
		if object != "" && object != "." {
			ix.byObject[object] = p
		}
	}
	return ix
}

// Lookup returns the local path for src. src matches either a cached path
// exactly or a remote URL whose object ID segment is cached.
func (ix *AssetIndex) Lookup(src string) (string, bool) {
	if ix == nil || src == "" {
		return "", false
	}
	if _, ok := ix.paths[src]; ok {
		return src, true
	}

	u, err := url.Parse(src)
	if err != nil || u.Host == "" {
		return "", false
	}
	_, object, _, ok := asset.SplitPath(u.Path)
	if !ok {
		return "", false
	}
	local, ok := ix.byObject[object]
	return local, ok
}
