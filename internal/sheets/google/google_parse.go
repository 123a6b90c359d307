package google

import "strings"

// a1Range builds "Sheet!A1:B2", quoting the sheet name when the Sheets API
// requires it.
func a1Range(sheet, cells string) string {
	if needsQuoting(sheet) {
		sheet = "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	}
	return sheet + "!" + cells
}

func needsQuoting(sheet string) bool {
	for _, r := range sheet {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z') {
			return true
		}
	}
	return false
}

// nextBlockRow returns the first row of a new block given how many rows are
// in use. Blocks after the first are preceded by a blank row.
func nextBlockRow(used int) int {
	if used == 0 {
		return 1
	}
	return used + 2
}
