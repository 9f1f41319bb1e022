package model

// Room is a physical venue hall.  Every event is seated in exactly one
// room and the room's seats are the only seats an event can issue.
type Room struct {
	ID   uint64 `db:"id"`   // rooms.id
	Name string `db:"name"` // rooms.name
}

// Block groups rows inside a room (e.g. "Parkett", "Balkon").
type Block struct {
	ID     uint64 `db:"id"`      // blocks.id
	RoomID uint64 `db:"room_id"` // blocks.room_id
	Name   string `db:"name"`    // blocks.name
	Sort   int    `db:"sort"`    // blocks.sort
}

// Row is a single row of seats inside a block.  The table is called
// seat_rows because ROWS is a reserved word in MySQL 8.
type Row struct {
	ID      uint64 `db:"id"`       // seat_rows.id
	BlockID uint64 `db:"block_id"` // seat_rows.block_id
	Name    string `db:"name"`     // seat_rows.name
	Sort    int    `db:"sort"`     // seat_rows.sort
}

// Seat describes a physical, bookable seat.  A seat belongs to exactly one
// row, which belongs to one block, which belongs to one room.
//
// Fields:
//  ID     – primary key identifier.
//  RowID  – row to which this seat belongs.
//  Number – ordering number of the seat within the row.
//  Label  – display label printed on the ticket.
type Seat struct {
	ID     uint64 `db:"id"`     // seats.id
	RowID  uint64 `db:"row_id"` // seats.row_id
	Number uint32 `db:"number"` // seats.number
	Label  string `db:"label"`  // seats.label
}

// SeatPlacement is a seat resolved through its row and block to the room it
// belongs to.  It is the unit the seat catalog works with.
type SeatPlacement struct {
	SeatID    uint64 `db:"seat_id" json:"seat_id"`
	Label     string `db:"label" json:"label"`
	Number    uint32 `db:"number" json:"number"`
	RowID     uint64 `db:"row_id" json:"row_id"`
	RowName   string `db:"row_name" json:"row_name"`
	BlockID   uint64 `db:"block_id" json:"block_id"`
	BlockName string `db:"block_name" json:"block_name"`
	RoomID    uint64 `db:"room_id" json:"room_id"`
}
