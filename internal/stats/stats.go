package stats

import (
	"encoding/json"
	"fmt"

	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/database"
	"gorm.io/datatypes"
)

// Point is one x/y observation in a graph dataset. Points are stored as a
// JSON array on the dataset row and are only ever replaced wholesale.
type Point struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label,omitempty"`
}

// Stats summarizes a point sequence. The extrema are nil when the sequence
// is empty.
type Stats struct {
	TotalPoints int
	MinX        *float64
	MaxX        *float64
	MinY        *float64
	MaxY        *float64
}

// Recompute derives the stats in a single pass over the points.
func Recompute(points []Point) Stats {
	if len(points) == 0 {
		return Stats{}
	}

	minX, maxX := points[0].X, points[0].X
	minY, maxY := points[0].Y, points[0].Y
	for _, p := range points[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}

	return Stats{
		TotalPoints: len(points),
		MinX:        &minX,
		MaxX:        &maxX,
		MinY:        &minY,
		MaxY:        &maxY,
	}
}

// ReplacePoints swaps the dataset's point sequence and refreshes its cached
// stats. Individual points are not addressable, so this is the only write
// path for point data.
func ReplacePoints(dataset *database.GraphDataset, points []Point) error {
	data, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("could not encode data points: %w", err)
	}

	s := Recompute(points)

	dataset.DataPoints = datatypes.JSON(data)
	dataset.TotalPoints = s.TotalPoints
	dataset.MinX = s.MinX
	dataset.MaxX = s.MaxX
	dataset.MinY = s.MinY
	dataset.MaxY = s.MaxY

	return nil
}

// Points decodes the dataset's stored point sequence.
func Points(dataset *database.GraphDataset) ([]Point, error) {
	if len(dataset.DataPoints) == 0 {
		return nil, nil
	}

	var points []Point
	if err := json.Unmarshal(dataset.DataPoints, &points); err != nil {
		return nil, fmt.Errorf("could not decode data points: %w", err)
	}
	return points, nil
}
