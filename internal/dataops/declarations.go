package dataops

import (
	_ "embed"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed declarations.yml
var declarationsYAML []byte

var (
	declarationsOnce sync.Once
	declarations     map[string]string
)

// DefaultDeclaration returns the default WHERE clause for an object, if one
// is declared. The table constrains which existing records a selection may
// draw from.
func DefaultDeclaration(object string) (string, bool) {
	declarationsOnce.Do(func() {
		declarations = make(map[string]string)
		// The embedded table is validated by tests; a parse failure here
		// leaves every object unconstrained.
		_ = yaml.Unmarshal(declarationsYAML, &declarations)
	})
	where, ok := declarations[object]
	return where, ok
}
