// Calendar: seasons and simulated years derived from the tick index.
package engine

import "fmt"

// Calendar constants. A simulated year is four seasons of equal length.
const (
	YearLength   = 60
	SeasonLength = 15
)

// Season is a calendar season and its production multiplier.
type Season struct {
	Name   string
	Factor float64
}

var seasons = [4]Season{
	{Name: "winter", Factor: 0.9},
	{Name: "spring", Factor: 1.0},
	{Name: "summer", Factor: 1.2},
	{Name: "autumn", Factor: 1.0},
}

// PosInYear returns the 0-based position of tick within its simulated year.
func PosInYear(tick int64) int {
	pos := tick % YearLength
	if pos < 0 {
		pos += YearLength
	}
	return int(pos)
}

// YearOf returns the simulated year index of tick.
func YearOf(tick int64) int64 {
	if tick < 0 {
		return (tick - YearLength + 1) / YearLength
	}
	return tick / YearLength
}

// SeasonAt returns the season in effect at tick.
func SeasonAt(tick int64) Season {
	return seasons[PosInYear(tick)/SeasonLength]
}

// FirstTickOfYear reports whether tick opens a simulated year.
func FirstTickOfYear(tick int64) bool { return PosInYear(tick) == 0 }

// LastTickOfYear reports whether tick closes a simulated year.
func LastTickOfYear(tick int64) bool { return PosInYear(tick) == YearLength-1 }

// goldenWindow is the mid-summer span in which a golden harvest doubles yield.
func goldenWindow(pos int) bool {
	start := 2 * SeasonLength
	return pos >= start && pos < start+5
}

// SimTime returns a human-readable simulation time string from a tick index.
func SimTime(tick int64) string {
	pos := PosInYear(tick)
	return fmt.Sprintf("Year %d, %s day %d", YearOf(tick)+1, SeasonAt(tick).Name, pos%SeasonLength+1)
}
