package georaster

import "fmt"

// A TileKey identifies a tile within a LevelSet.
type TileKey struct {
	Level  int
	Row    int
	Column int
}

func (k TileKey) String() string {
	return fmt.Sprintf("%d/%d/%d", k.Level, k.Row, k.Column)
}

// A Tile is one rectangular unit of coverage at a Level.
type Tile struct {
	Key    TileKey
	Sector Sector
	Level  *Level
}

// Path returns the path of t's data, relative to its data root.
func (t *Tile) Path() string {
	return t.Level.Path(t.Key)
}

// Width returns t's width in pixels.
func (t *Tile) Width() int {
	return t.Level.tileWidth
}

// Height returns t's height in pixels.
func (t *Tile) Height() int {
	return t.Level.tileHeight
}

func (t *Tile) String() string {
	return t.Key.String()
}
