package fu

import (
	"go-ml.dev/pkg/iokit"
	"path/filepath"
)

/*
ModelPath resolves a relative name of a saved-models file into the user cache
*/
func ModelPath(s string) string {
	if filepath.IsAbs(s) {
		return s
	}
	return iokit.CacheFile(filepath.Join("go-ml", "AutoML", s))
}
