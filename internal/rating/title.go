package rating

import "github.com/park285/mill-arena/internal/domain"

type Title struct {
	Min   int
	Name  string
	Color string
}

// Titles is ordered from lowest to highest.
var Titles = []Title{
	{500, "I", "#8B4513"},
	{1000, "G", "#4B0082"},
	{1500, "L", "#006400"},
	{2000, "M", "#DC143C"},
	{2300, "D", "#0000FF"},
	{2500, "O", "#008000"},
	{2700, "SU", "#FFD700"},
	{3000, "V", "#FF8C00"},
}

// TitleFor returns the title earned by rating, if any.
func TitleFor(rating int) (Title, bool) {
	for i := len(Titles) - 1; i >= 0; i-- {
		if rating >= Titles[i].Min {
			return Titles[i], true
		}
	}
	return Title{}, false
}

func titleIndex(name string) int {
	for i, t := range Titles {
		if t.Name == name {
			return i
		}
	}
	return -1
}

// UpdateTitle recomputes the current title from the best class rating and
// raises the permanent highest title when it was exceeded.
func UpdateTitle(p *domain.PlayerRecord) {
	t, ok := TitleFor(p.BestRating())
	if !ok {
		p.Title = ""
		return
	}
	p.Title = t.Name
	if titleIndex(t.Name) > titleIndex(p.HighestTitle) {
		p.HighestTitle = t.Name
	}
}

// DisplayTitle is the permanent highest title, falling back to the current one.
func DisplayTitle(p *domain.PlayerRecord) string {
	if p.HighestTitle != "" {
		return p.HighestTitle
	}
	return p.Title
}

// ColorOf is the display color of a title name, empty for unknown names.
func ColorOf(name string) string {
	if i := titleIndex(name); i >= 0 {
		return Titles[i].Color
	}
	return ""
}
