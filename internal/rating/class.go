package rating

import (
	"strings"

	"github.com/park285/mill-arena/internal/domain"
)

var bulletControls = map[string]struct{}{
	"1+0": {},
	"1+1": {},
	"2+1": {},
}

// ClassFor maps a time control to its rating class.
func ClassFor(timeControl string) domain.RatingClass {
	if _, ok := bulletControls[strings.TrimSpace(timeControl)]; ok {
		return domain.ClassBullet
	}
	return domain.ClassBlitz
}
