package board

import "github.com/gravitas-games/screwsort/pkg/models"

// Layout maps lanes and slots to world positions.
type Layout interface {
	ContainerPosition(lane int) models.Vec2
	SlotPosition(container models.Vec2, slot, slots int) models.Vec2
	HolePosition(index int) models.Vec2
}

// RowLayout places containers on one row and holes on a second row below it.
type RowLayout struct {
	ContainerWidth float64
	SlotSpacing    float64
	HoleSpacing    float64
	ContainerRowY  float64
	HoleRowY       float64
}

var _ Layout = RowLayout{}

// ContainerPosition returns the center of the container in lane.
func (l RowLayout) ContainerPosition(lane int) models.Vec2 {
	return models.Vec2{X: float64(lane)*l.ContainerWidth + l.ContainerWidth/2, Y: l.ContainerRowY}
}

// SlotPosition spreads slots evenly around the container center.
func (l RowLayout) SlotPosition(container models.Vec2, slot, slots int) models.Vec2 {
	offset := (float64(slot) - float64(slots-1)/2) * l.SlotSpacing
	return models.Vec2{X: container.X + offset, Y: container.Y}
}

// HolePosition returns the center of hole index (0-based).
func (l RowLayout) HolePosition(index int) models.Vec2 {
	return models.Vec2{X: float64(index)*l.HoleSpacing + l.HoleSpacing/2, Y: l.HoleRowY}
}
