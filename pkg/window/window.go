// Package window computes the pre/post-event monthly basemap windows for an
// inventory's event dates.
package window

import (
	"fmt"
	"path/filepath"
	"time"
)

// Tag identifies which side of the event window a mosaic covers.
type Tag string

const (
	// TagPre is the calendar month immediately before the earliest event date.
	TagPre Tag = "pre"
	// TagPost is the calendar month immediately after the latest event date.
	TagPost Tag = "post"
)

// Window is a tagged (year, month) pair.
type Window struct {
	Tag   Tag
	Year  int
	Month int
}

// Previous returns the calendar month before (month, year).
func Previous(month, year int) (int, int) {
	if month == 1 {
		return 12, year - 1
	}
	return month - 1, year
}

// Next returns the calendar month after (month, year).
func Next(month, year int) (int, int) {
	if month == 12 {
		return 1, year + 1
	}
	return month + 1, year
}

// Bracket derives the pre and post windows from an inventory's event dates.
// dates must be non-empty and ascending: pre is the month before the first
// date, post the month after the last.
func Bracket(dates []time.Time) (pre, post Window) {
	first := dates[0]
	last := dates[len(dates)-1]

	preMonth, preYear := Previous(int(first.Month()), first.Year())
	postMonth, postYear := Next(int(last.Month()), last.Year())

	pre = Window{Tag: TagPre, Year: preYear, Month: preMonth}
	post = Window{Tag: TagPost, Year: postYear, Month: postMonth}
	return pre, post
}

// MosaicName returns the Planet monthly basemap mosaic name for the window.
func (w Window) MosaicName() string {
	return fmt.Sprintf("global_monthly_%d_%02d_mosaic", w.Year, w.Month)
}

// QuadDir returns the directory that holds the window's downloaded quads.
func (w Window) QuadDir(root, inventory string) string {
	return filepath.Join(root, inventory, string(w.Tag)+"_quads")
}

// MergedPath returns the path of the window's merged mosaic output.
func (w Window) MergedPath(root, inventory string) string {
	return filepath.Join(root, inventory, string(w.Tag)+"_merged.tif")
}

func (w Window) String() string {
	return fmt.Sprintf("%s %d-%02d", w.Tag, w.Year, w.Month)
}
