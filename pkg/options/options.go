// Package options holds the contract shared by the per-concern option groups
// and helpers to complete and validate a set of groups at once.
package options

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// IOptions is a group of related settings exposed as flags.
type IOptions interface {
	// Validate reports every problem instead of stopping at the first.
	Validate() []error
	// AddFlags registers the group's flags; prefixes are joined in front of
	// the group's own "<group>." prefix.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// Completer is implemented by groups that derive values after parsing,
// such as reading a secret from the environment.
type Completer interface {
	Complete() error
}

// Join builds a flag prefix: Join("a", "b") is "a.b.", Join() is "".
func Join(prefixes ...string) string {
	if len(prefixes) == 0 {
		return ""
	}
	return strings.Join(prefixes, ".") + "."
}

// Section names a group inside an aggregate.
type Section struct {
	Name string
	IOptions
}

// CompleteAll runs Complete on each section that implements Completer and
// stops at the first failure.
func CompleteAll(sections ...Section) error {
	for _, s := range sections {
		c, ok := s.IOptions.(Completer)
		if !ok {
			continue
		}
		if err := c.Complete(); err != nil {
			return fmt.Errorf("%s: %w", s.Name, err)
		}
	}
	return nil
}

// ValidateAll collects the errors of every section.
func ValidateAll(sections ...Section) []error {
	var errs []error
	for _, s := range sections {
		errs = append(errs, s.Validate()...)
	}
	return errs
}
