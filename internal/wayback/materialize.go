package wayback

import (
	"strconv"
	"strings"

	"alpinesight-server/internal/tiles"
)

// Materialize resolves a descriptor's URL template against a tile
// coordinate: {level} -> z, {row} -> y, {col} -> x. Pure and total; a
// malformed template simply fails later at fetch time.
func Materialize(desc SnapshotDescriptor, coord tiles.Coordinate, index int) CandidateTile {
	url := desc.URLTemplate
	url = strings.Replace(url, "{level}", strconv.Itoa(coord.Z), 1)
	url = strings.Replace(url, "{row}", strconv.Itoa(coord.Y), 1)
	url = strings.Replace(url, "{col}", strconv.Itoa(coord.X), 1)

	return CandidateTile{
		SnapshotDescriptor: desc,
		TileURL:            url,
		Index:              index,
	}
}
