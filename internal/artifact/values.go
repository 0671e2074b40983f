package artifact

// Typed block configuration values. The concrete Go type of Tile.Config
// selects the wire tag used when encoding.
//
//	nil          0    int32        1    int64       2
//	float32      3    string       4    Content     5
//	IntSeq       6    Point        7    []Point     8
//	bool        10    float64     11    Building   12
//	LAccess     13    []byte      14    Team       20
//	IntArray    21    UnitCommand 23
const (
	tagNull        = 0
	tagInt         = 1
	tagLong        = 2
	tagFloat       = 3
	tagString      = 4
	tagContent     = 5
	tagIntSeq      = 6
	tagPoint       = 7
	tagPoints      = 8
	tagBool        = 10
	tagDouble      = 11
	tagBuilding    = 12
	tagLAccess     = 13
	tagBytes       = 14
	tagTeam        = 20
	tagIntArray    = 21
	tagUnitCommand = 23
)

// Content references a game content entry (block, item, unit ...).
type Content struct {
	Type uint8
	ID   int16
}

// Point is a relative tile coordinate.
type Point struct {
	X, Y int16
}

func (p Point) pack() int32 {
	return int32(p.X)<<16 | int32(uint16(p.Y))
}

func unpackPoint(v int32) Point {
	return Point{X: int16(v >> 16), Y: int16(v)}
}

// IntSeq is a growable int list.
type IntSeq []int32

// IntArray is a fixed int array.
type IntArray []int32

// Building is a packed building position.
type Building int32

// LAccess is a logic sensor selector.
type LAccess int16

// Team is a team id.
type Team uint8

// UnitCommand is a unit command id.
type UnitCommand uint16
