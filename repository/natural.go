package repository

import (
	"sort"

	"musiclib/model"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// NaturalOrder compares strings the way people expect file names to be listed:
// case-insensitive, locale aware, and with digit runs compared by value, so
// "track2.mp3" sorts before "track10.mp3".
type NaturalOrder struct {
	tag language.Tag
}

// NewNaturalOrder uses the collation rules of locale ("und" for the root
// collation). Unparseable locales fall back to the root collation.
func NewNaturalOrder(locale string) NaturalOrder {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.Und
	}
	return NaturalOrder{tag: tag}
}

// collator is created per use because collate.Collator is not safe for
// concurrent use.
func (n NaturalOrder) collator() *collate.Collator {
	return collate.New(n.tag, collate.IgnoreCase, collate.Numeric)
}

// Compare returns -1, 0 or 1.
func (n NaturalOrder) Compare(a, b string) int {
	return n.collator().CompareString(a, b)
}

// sortByFilename orders rows by file name, keeping database order for ties.
func (n NaturalOrder) sortByFilename(rows []model.TrackFolder) {
	c := n.collator()
	sort.SliceStable(rows, func(i, j int) bool {
		return c.CompareString(rows[i].Filename, rows[j].Filename) < 0
	})
}
