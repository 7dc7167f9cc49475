// File: internal/apiclient/spec.go
package apiclient

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"

	"tokgrab/internal/config"
)

// placeholderPattern matches a template value that is exactly one named
// placeholder, e.g. "{keyword}".
var placeholderPattern = regexp.MustCompile(`^\{([A-Za-z0-9_]+)\}$`)

// Param is one entry in a request parameter template: either a literal
// string or a reference to a named dynamic parameter. Exactly one of the
// two fields is set.
type Param struct {
	Literal     string
	Placeholder string
}

// RequestSpec is an immutable description of one API endpoint: path, method,
// and the full parameter template. Placeholders are resolved per call from a
// dynamic parameter map.
type RequestSpec struct {
	Name   string
	Path   string
	Method string

	params  map[string]Param
	dynamic map[string]bool
}

// NewRequestSpec builds a RequestSpec from configuration and validates the
// template: every placeholder must name a declared dynamic parameter, and
// every declared dynamic parameter must appear in the template. A typo in
// either direction fails here, at load time, instead of mid-crawl.
func NewRequestSpec(name string, cfg config.APIConfig) (*RequestSpec, error) {
	spec := &RequestSpec{
		Name:    name,
		Path:    cfg.Path,
		Method:  cfg.Method,
		params:  make(map[string]Param, len(cfg.Params)),
		dynamic: make(map[string]bool, len(cfg.DynamicParams)),
	}
	for _, d := range cfg.DynamicParams {
		spec.dynamic[d] = true
	}

	referenced := make(map[string]bool)
	for key, value := range cfg.Params {
		if m := placeholderPattern.FindStringSubmatch(value); m != nil {
			placeholder := m[1]
			if !spec.dynamic[placeholder] {
				return nil, fmt.Errorf("api %q: parameter %q references undeclared dynamic parameter %q",
					name, key, placeholder)
			}
			referenced[placeholder] = true
			spec.params[key] = Param{Placeholder: placeholder}
			continue
		}
		spec.params[key] = Param{Literal: value}
	}

	for d := range spec.dynamic {
		if !referenced[d] {
			return nil, fmt.Errorf("api %q: declared dynamic parameter %q is never referenced", name, d)
		}
	}
	return spec, nil
}

// DynamicParams returns the declared dynamic parameter names, sorted.
func (s *RequestSpec) DynamicParams() []string {
	out := make([]string, 0, len(s.dynamic))
	for d := range s.dynamic {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// BuildParams resolves the template against the supplied dynamic values.
// A placeholder whose key is absent from the dynamic map fails with
// ErrMissingDynamicParam.
func (s *RequestSpec) BuildParams(dynamic map[string]string) (url.Values, error) {
	values := make(url.Values, len(s.params))
	for key, p := range s.params {
		if p.Placeholder == "" {
			values.Set(key, p.Literal)
			continue
		}
		v, ok := dynamic[p.Placeholder]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingDynamicParam, p.Placeholder)
		}
		values.Set(key, v)
	}
	return values, nil
}
