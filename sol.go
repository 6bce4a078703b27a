package harvest

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Sol is the number of a mission day. Remote archives group products in one
// directory per sol.
type Sol int

// Format renders the sol as a zero padded directory name with the given
// prefix, e.g. Sol(77).Format("sol_") == "sol_00077".
func (s Sol) Format(prefix string) string {
	return fmt.Sprintf("%s%05d", prefix, int(s))
}

func (s Sol) String() string {
	return strconv.Itoa(int(s))
}

var solDigits = regexp.MustCompile(`^(?i:sol_?)?(\d+)$`)

// ParseSol accepts "sol00077", "sol_00077", or bare digits.
func ParseSol(s string) (Sol, error) {
	m := solDigits.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, errors.Errorf("not a sol: '%s'", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, errors.Wrapf(err, "parsing sol '%s'", s)
	}
	return Sol(n), nil
}

// Sols is a sortable list of sols.
type Sols []Sol

func (p Sols) Len() int           { return len(p) }
func (p Sols) Less(i, j int) bool { return p[i] < p[j] }
func (p Sols) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }

// After returns the distinct sols in p which are strictly greater than
// checkpoint, in ascending order. If ok is false there is no checkpoint and
// every sol is returned.
func (p Sols) After(checkpoint Sol, ok bool) Sols {
	seen := make(map[Sol]struct{}, len(p))
	ret := make(Sols, 0, len(p))
	for _, s := range p {
		if ok && s <= checkpoint {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		ret = append(ret, s)
	}
	sort.Sort(ret)
	return ret
}
