package document

import (
	"github.com/samber/lo"
)

// RequiredDimensions is the number of leading impacted business area
// dimensions a document must satisfy to belong to a site.
const RequiredDimensions = 2

// Filter holds the allowed impacted business area values of a site, one set
// per dimension. An empty string in a set accepts documents without a value
// in that dimension.
type Filter [ImpactedDimensions][]string

// Matches reports whether values satisfy f. Dimensions below required must be
// satisfied; a configured higher dimension excludes documents it does not
// satisfy, an unconfigured one is ignored.
func Matches(values [ImpactedDimensions][]string, f Filter, required int) bool {
	for i := 0; i < ImpactedDimensions; i++ {
		real, allowed := values[i], f[i]
		ok := satisfied(real, allowed)

		if i < required {
			if !ok {
				return false
			}
			continue
		}

		if len(allowed) > 0 && !ok {
			return false
		}
	}
	return true
}

func satisfied(real, allowed []string) bool {
	if len(real) == 0 {
		return lo.Contains(allowed, "")
	}
	return lo.Some(real, allowed)
}

type Site struct {
	Name   string `yaml:"name"`
	Filter Filter `yaml:"-"`
}

// Route returns the first site whose filter accepts rec.
func Route(rec *Record, sites []Site) (string, bool) {
	site, found := lo.Find(sites, func(s Site) bool {
		return Matches(rec.ImpactedBusinessAreas, s.Filter, RequiredDimensions)
	})
	return site.Name, found
}
