package table

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Suggest returns the candidate closest to name, or "" when nothing is close.
func Suggest(name string, candidates []string) string {
	best, bestDist := "", -1
	target := strings.ToLower(strings.TrimSpace(name))
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(target, strings.ToLower(strings.TrimSpace(c)))
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}

	limit := len([]rune(target)) / 3
	if limit < 2 {
		limit = 2
	}
	if bestDist < 0 || bestDist > limit {
		return ""
	}
	return best
}

// MissingSheetError builds the fatal error for a worksheet that does not exist.
func MissingSheetError(ref Ref, available []string) error {
	msg := fmt.Sprintf("worksheet %q not found in %s", ref.Sheet, ref.Spreadsheet)
	if s := Suggest(ref.Sheet, available); s != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", s)
	}
	return NewError(KindFatal, "open", fmt.Errorf("%s", msg))
}
