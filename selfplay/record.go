package selfplay

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"tengen/game"
)

// sgfColumns are the point letters of the SGF format, top-left origin.
const sgfColumns = "abcdefghijklmnopqrs"

// sgfDocument renders a finished game as a single-variation SGF tree.
func sgfDocument(size int, komi float64, moves []play, result string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "(;GM[1]FF[4]CA[UTF-8]SZ[%d]KM[%s]RE[%s]PB[tengen]PW[tengen]",
		size, strconv.FormatFloat(komi, 'f', -1, 64), result)

	for _, p := range moves {
		prop := "B"
		if p.color == game.White {
			prop = "W"
		}
		fmt.Fprintf(&b, ";%s[%s]", prop, sgfPoint(p.move, size))
	}
	b.WriteString(")\n")
	return b.String()
}

// sgfPoint encodes a vertex as SGF coordinates, with row zero at the
// top. A pass is the empty point.
func sgfPoint(v game.Vertex, size int) string {
	if v == game.Pass {
		return ""
	}
	x, y := v.XY(size)
	return string([]byte{sgfColumns[x], sgfColumns[size-1-y]})
}

func writeSummary(path string, records []record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	defer writer.Flush()

	header := []string{"id", "result", "moves", "playouts", "duration", "sgf"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write summary header: %w", err)
	}

	for _, r := range records {
		row := []string{
			r.ID,
			r.Result,
			strconv.Itoa(r.Moves),
			strconv.FormatInt(r.Playouts, 10),
			r.Duration.String(),
			r.File,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}
	return writer.Error()
}
