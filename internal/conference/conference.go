// Package conference maps conference identifiers such as "CVPR2023" to
// the index page that lists their papers.
package conference

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/mfenderov/cvf-papers/internal/config"
	"github.com/mfenderov/cvf-papers/pkg/models"
)

// PaginationYear is the first year whose index is split into daily pages.
const PaginationYear = 2018

const (
	LayoutFlat      = "flat"
	LayoutPaginated = "paginated"
)

var namePattern = regexp.MustCompile(`^[A-Za-z]+[0-9]{4}$`)

// Spec describes one conference to crawl.
type Spec struct {
	Name      string
	Paginated bool   // index is split into daily sub-index pages
	IndexURL  string // absolute URL of the root index
	ListIndex int    // which <dl> holds the entries on flat pages
}

// Resolver turns names into Specs.
type Resolver struct {
	baseURL   string
	overrides map[string]config.Conference
}

// NewResolver creates a Resolver for names under baseURL. Overrides take
// precedence over the name pattern.
func NewResolver(baseURL string, overrides []config.Conference) (*Resolver, error) {
	u, err := url.Parse(baseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid base URL %q", models.ErrConfiguration, baseURL)
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	r := &Resolver{
		baseURL:   baseURL,
		overrides: make(map[string]config.Conference, len(overrides)),
	}
	for _, o := range overrides {
		r.overrides[o.Name] = o
	}
	return r, nil
}

// Resolve returns the Spec for one conference name.
func (r *Resolver) Resolve(name string) (Spec, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Spec{}, fmt.Errorf("%w: empty conference name", models.ErrConfiguration)
	}

	if o, ok := r.overrides[name]; ok {
		return r.fromOverride(o)
	}

	if !namePattern.MatchString(name) {
		return Spec{}, fmt.Errorf("%w: unknown conference %q (expected a name like CVPR2023)", models.ErrConfiguration, name)
	}
	year, _ := strconv.Atoi(name[len(name)-4:])

	return Spec{
		Name:      name,
		Paginated: year >= PaginationYear,
		IndexURL:  r.baseURL + name,
	}, nil
}

// ResolveList resolves a comma-separated list of names, in order.
func (r *Resolver) ResolveList(names string) ([]Spec, error) {
	var specs []Spec
	for _, name := range strings.Split(names, ",") {
		spec, err := r.Resolve(name)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (r *Resolver) fromOverride(o config.Conference) (Spec, error) {
	spec := Spec{
		Name:      o.Name,
		IndexURL:  o.URL,
		ListIndex: o.ListIndex,
	}
	if spec.IndexURL == "" {
		spec.IndexURL = r.baseURL + o.Name
	}
	u, err := url.Parse(spec.IndexURL)
	if err != nil || !u.IsAbs() {
		return Spec{}, fmt.Errorf("%w: conference %q has invalid url %q", models.ErrConfiguration, o.Name, o.URL)
	}
	if o.ListIndex < 0 {
		return Spec{}, fmt.Errorf("%w: conference %q has negative list_index", models.ErrConfiguration, o.Name)
	}

	switch o.Layout {
	case LayoutFlat:
		spec.Paginated = false
	case LayoutPaginated:
		spec.Paginated = true
	case "":
		if !namePattern.MatchString(o.Name) {
			return Spec{}, fmt.Errorf("%w: conference %q needs a layout", models.ErrConfiguration, o.Name)
		}
		year, _ := strconv.Atoi(o.Name[len(o.Name)-4:])
		spec.Paginated = year >= PaginationYear
	default:
		return Spec{}, fmt.Errorf("%w: conference %q has unknown layout %q", models.ErrConfiguration, o.Name, o.Layout)
	}

	return spec, nil
}
