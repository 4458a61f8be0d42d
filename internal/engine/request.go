package engine

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/YannKr/countersignal/internal/model"
	"github.com/YannKr/countersignal/internal/technique"
)

var ErrValidation = errors.New("invalid generate request")

// ValidationError lists every problem found in a request. Nothing is minted
// or stored when one is returned.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Request asks for one campaign over the cross product of its selections.
type Request struct {
	Name        string               `json:"name" validate:"max=200"`
	Formats     []model.Format       `json:"formats" validate:"required,min=1,dive,required"`
	Techniques  []model.Technique    `json:"techniques" validate:"dive,required"`
	Styles      []model.PayloadStyle `json:"payload_styles" validate:"dive,required"`
	Types       []model.PayloadType  `json:"payload_types" validate:"dive,required"`
	CallbackURL string               `json:"callback_url" validate:"required,url"`
	Dangerous   bool                 `json:"dangerous"`
	Seed        int64                `json:"seed"`
}

var validate = validator.New()

// normalize fills in defaults: the obvious style, the benign callback type
// and every technique registered for the selected formats.
func (r *Request) normalize(reg *technique.Registry) {
	if len(r.Styles) == 0 {
		r.Styles = []model.PayloadStyle{model.StyleObvious}
	}
	if len(r.Types) == 0 {
		r.Types = []model.PayloadType{model.TypeCallback}
	}
	if len(r.Techniques) == 0 {
		seen := map[model.Technique]bool{}
		for _, f := range r.Formats {
			for _, t := range reg.Techniques(f) {
				if !seen[t] {
					seen[t] = true
					r.Techniques = append(r.Techniques, t)
				}
			}
		}
	}
	r.Formats = dedupe(r.Formats)
	r.Techniques = dedupe(r.Techniques)
	r.Styles = dedupe(r.Styles)
	r.Types = dedupe(r.Types)
}

func (r *Request) validate(reg *technique.Registry) error {
	var problems []string

	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate request: %w", err)
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
	}

	for _, f := range r.Formats {
		if !reg.HasFormat(f) {
			problems = append(problems, fmt.Sprintf("unknown format %q", f))
		}
	}
	for _, t := range r.Techniques {
		found := false
		for _, f := range r.Formats {
			if _, ok := reg.Lookup(f, t); ok {
				found = true
				break
			}
		}
		if !found {
			problems = append(problems, fmt.Sprintf("technique %q is not registered for any selected format", t))
		}
	}
	for _, s := range r.Styles {
		if !technique.KnownStyle(s) {
			problems = append(problems, fmt.Sprintf("unknown payload style %q", s))
		}
	}
	for _, t := range r.Types {
		if !technique.KnownType(t) {
			problems = append(problems, fmt.Sprintf("unknown payload type %q", t))
			continue
		}
		if t.Dangerous() && !r.Dangerous {
			problems = append(problems, fmt.Sprintf("payload type %q requires the dangerous flag", t))
		}
	}
	if p := checkCallbackURL(r.CallbackURL); p != "" {
		problems = append(problems, p)
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func checkCallbackURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "callback_url is not a valid URL"
	}
	switch {
	case u.Scheme != "http" && u.Scheme != "https":
		return "callback_url must use http or https"
	case u.Host == "":
		return "callback_url must include a host"
	case u.RawQuery != "" || u.Fragment != "" || u.ForceQuery:
		return "callback_url must not carry a query or fragment"
	case !technique.SafeText(raw):
		return "callback_url contains characters that cannot be embedded"
	}
	return ""
}

func dedupe[T comparable](in []T) []T {
	seen := make(map[T]bool, len(in))
	out := make([]T, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
