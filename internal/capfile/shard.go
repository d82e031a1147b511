package capfile

import (
	"fmt"
	"path/filepath"
)

// ShardName returns the file name for shard index of n total shards,
// derived from base. With n == 1 it returns base unchanged; otherwise it
// inserts ".index" before base's extension (base.ext becomes base.index.ext,
// and a base with no extension becomes base.index).
func ShardName(base string, index, n int) string {
	if n == 1 {
		return base
	}
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]
	return fmt.Sprintf("%s.%d%s", stem, index, ext)
}
