// Package generator builds the decoy documents that carry a hidden payload,
// one generator per registered (format, technique) pair.
package generator

import "github.com/YannKr/countersignal/internal/technique"

// NewRegistry returns a registry holding every built-in generator.
func NewRegistry() (*technique.Registry, error) {
	r := technique.NewRegistry()
	for _, register := range []func(*technique.Registry) error{
		registerPDF,
		registerImage,
		registerMarkdown,
		registerHTML,
		registerDOCX,
		registerICS,
		registerEML,
		registerXLSX,
	} {
		if err := register(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}
