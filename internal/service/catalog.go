package service

import (
	"context"

	"github.com/samber/lo"

	"github.com/iliyamo/event-seat-booking/internal/model"
	"github.com/iliyamo/event-seat-booking/internal/repository"
)

// SeatDescription is what a confirmation or receipt shows for one seat.
type SeatDescription struct {
	SeatID    uint64 `json:"seat_id"`
	BlockName string `json:"block_name"`
	RowName   string `json:"row_name"`
	Label     string `json:"label"`
}

// SeatCatalog is the read path over the seating hierarchy.
type SeatCatalog struct {
	seats repository.SeatReader
}

// NewSeatCatalog wraps a seat reader.
func NewSeatCatalog(seats repository.SeatReader) *SeatCatalog {
	return &SeatCatalog{seats: seats}
}

// SeatIndex maps seat ids to their resolved placement.
type SeatIndex map[uint64]model.SeatPlacement

// Resolve loads the placements of ids in a single query.
func (c *SeatCatalog) Resolve(ctx context.Context, ids []uint64) (SeatIndex, error) {
	placements, err := c.seats.Placements(ctx, lo.Uniq(ids))
	if err != nil {
		return nil, persistence("resolve seats", err)
	}
	return lo.KeyBy(placements, func(p model.SeatPlacement) uint64 { return p.SeatID }), nil
}

// SeatsExist verifies that every id resolves to a seat in roomID.  Unknown
// ids are reported before seats that belong to another room.
func (c *SeatCatalog) SeatsExist(ctx context.Context, ids []uint64, roomID uint64) (SeatIndex, error) {
	idx, err := c.Resolve(ctx, ids)
	if err != nil {
		return nil, err
	}
	return idx, idx.Verify(ids, roomID)
}

// Verify checks ids against the index.
func (idx SeatIndex) Verify(ids []uint64, roomID uint64) error {
	unknown := lo.Filter(ids, func(id uint64, _ int) bool {
		_, ok := idx[id]
		return !ok
	})
	if len(unknown) > 0 {
		return &SeatError{Kind: ErrUnknownSeat, SeatIDs: unknown}
	}
	foreign := lo.Filter(ids, func(id uint64, _ int) bool { return idx[id].RoomID != roomID })
	if len(foreign) > 0 {
		return &SeatError{Kind: ErrSeatNotInRoom, SeatIDs: foreign}
	}
	return nil
}

// Describe returns display data for ids in request order, skipping ids the
// index does not know.
func (idx SeatIndex) Describe(ids []uint64) []SeatDescription {
	out := make([]SeatDescription, 0, len(ids))
	for _, id := range ids {
		p, ok := idx[id]
		if !ok {
			continue
		}
		out = append(out, SeatDescription{SeatID: id, BlockName: p.BlockName, RowName: p.RowName, Label: p.Label})
	}
	return out
}

// Describe resolves and describes ids in one call.
func (c *SeatCatalog) Describe(ctx context.Context, ids []uint64) ([]SeatDescription, error) {
	idx, err := c.Resolve(ctx, ids)
	if err != nil {
		return nil, err
	}
	return idx.Describe(ids), nil
}

// LayoutRow is one row of a room layout.
type LayoutRow struct {
	RowID uint64       `json:"row_id"`
	Name  string       `json:"name"`
	Seats []LayoutSeat `json:"seats"`
}

// LayoutSeat is one seat of a room layout with its booking state.
type LayoutSeat struct {
	SeatID uint64 `json:"seat_id"`
	Number uint32 `json:"number"`
	Label  string `json:"label"`
	Booked bool   `json:"booked"`
}

// LayoutBlock is one block of a room layout.
type LayoutBlock struct {
	BlockID uint64      `json:"block_id"`
	Name    string      `json:"name"`
	Rows    []LayoutRow `json:"rows"`
}

// Layout returns the room's seats grouped by block and row in display
// order, flagging the seats present in booked.
func (c *SeatCatalog) Layout(ctx context.Context, roomID uint64, booked []uint64) ([]LayoutBlock, error) {
	seats, err := c.seats.LayoutByRoom(ctx, roomID)
	if err != nil {
		return nil, persistence("load layout", err)
	}
	taken := lo.Associate(booked, func(id uint64) (uint64, struct{}) { return id, struct{}{} })
	blocks := make([]LayoutBlock, 0)
	for _, s := range seats {
		if len(blocks) == 0 || blocks[len(blocks)-1].BlockID != s.BlockID {
			blocks = append(blocks, LayoutBlock{BlockID: s.BlockID, Name: s.BlockName, Rows: []LayoutRow{}})
		}
		b := &blocks[len(blocks)-1]
		if len(b.Rows) == 0 || b.Rows[len(b.Rows)-1].RowID != s.RowID {
			b.Rows = append(b.Rows, LayoutRow{RowID: s.RowID, Name: s.RowName, Seats: []LayoutSeat{}})
		}
		r := &b.Rows[len(b.Rows)-1]
		_, isBooked := taken[s.SeatID]
		r.Seats = append(r.Seats, LayoutSeat{SeatID: s.SeatID, Number: s.Number, Label: s.Label, Booked: isBooked})
	}
	return blocks, nil
}
