// Package limits bounds terminal geometry coming in over the wire.
package limits

import "fmt"

const (
	TerminalMaxCols = 500
	TerminalMaxRows = 200
)

type DimensionError struct {
	Cols, Rows       int
	MaxCols, MaxRows int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("dimensions %dx%d exceed max %dx%d", e.Cols, e.Rows, e.MaxCols, e.MaxRows)
}

func Normalize(cols, rows int) (int, int) {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return cols, rows
}

func Clamp(cols, rows int) (int, int) {
	cols, rows = Normalize(cols, rows)
	if cols > TerminalMaxCols {
		cols = TerminalMaxCols
	}
	if rows > TerminalMaxRows {
		rows = TerminalMaxRows
	}
	return cols, rows
}

func ValidateMax(cols, rows int) error {
	cols, rows = Normalize(cols, rows)
	if cols > TerminalMaxCols || rows > TerminalMaxRows {
		return &DimensionError{Cols: cols, Rows: rows, MaxCols: TerminalMaxCols, MaxRows: TerminalMaxRows}
	}
	return nil
}
