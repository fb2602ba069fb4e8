package sheet

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// EmptyGridHash is the fixed sentinel hash of a grid with no content:
// the SHA-256 digest of zero bytes.
var EmptyGridHash = hex.EncodeToString(sha256.New().Sum(nil))

// Canonicalize trims trailing fully-empty rows and trailing columns that are
// empty in every row, and pads ragged rows so the result is rectangular.
// Cell content is not altered: whitespace inside cells is significant at
// this stage, so two fetches of identical content always canonicalize
// identically and any real edit survives into the hash.
func Canonicalize(grid Grid) Grid {
	end := len(grid)
	for end > 0 && rowEmpty(grid[end-1]) {
		end--
	}
	grid = grid[:end]

	width := 0
	for _, row := range grid {
		if len(row) > width {
			width = len(row)
		}
	}
	for width > 0 && columnEmpty(grid, width-1) {
		width--
	}

	out := make(Grid, len(grid))
	for i, row := range grid {
		r := make([]string, width)
		copy(r, row)
		out[i] = r
	}
	return out
}

// Hash computes the deterministic SHA-256 content hash of a canonical grid.
// Cells are length-prefixed so that cell and row boundaries cannot alias:
// ["ab","c"] and ["a","bc"] hash differently.
func Hash(grid Grid) string {
	if len(grid) == 0 {
		return EmptyGridHash
	}

	h := sha256.New()
	var lenBuf [8]byte
	for _, row := range grid {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(row)))
		h.Write(lenBuf[:])
		for _, cell := range row {
			binary.BigEndian.PutUint64(lenBuf[:], uint64(len(cell)))
			h.Write(lenBuf[:])
			h.Write([]byte(cell))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}

func columnEmpty(grid Grid, col int) bool {
	for _, row := range grid {
		if col < len(row) && row[col] != "" {
			return false
		}
	}
	return true
}
