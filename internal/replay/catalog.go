package replay

import (
	"os"
	"path/filepath"
	"sort"
)

// BundleInfo summarises one bundle for catalogue tooling.
type BundleInfo struct {
	Directory string
	Manifest  Manifest
	Header    Header
	Complete  bool
}

// Catalog lists the bundles under root, newest first. Bundles whose header is missing are
// reported as incomplete: the battle was still running or the process died.
func Catalog(root string) ([]BundleInfo, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var bundles []BundleInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		manifest, err := readManifest(dir)
		if err != nil {
			continue
		}
		info := BundleInfo{Directory: dir, Manifest: manifest}
		if header, err := ReadHeader(filepath.Join(dir, HeaderFile)); err == nil {
			info.Header = header
			info.Complete = true
		}
		bundles = append(bundles, info)
	}
	sort.SliceStable(bundles, func(i, j int) bool {
		return bundles[i].Manifest.CreatedAt > bundles[j].Manifest.CreatedAt
	})
	return bundles, nil
}
