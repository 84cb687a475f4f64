package event

// ObjectPlaced fires when the map editor places an object on a map.
type ObjectPlaced struct {
	MapName  string
	ObjectID string
	Sprite   string
}

// ObjectRemoved fires when a placed object is deleted from a map.
type ObjectRemoved struct {
	MapName  string
	ObjectID string
}

// MapEdited fires after a bulk edit; subscribers re-derive everything for
// the map rather than tracking individual objects.
type MapEdited struct {
	MapName string
}
