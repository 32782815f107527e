// Package embedded provides the default phrase and regex tables compiled into
// the driftwatch binary. Config files can replace any individual list.
package embedded

import _ "embed"

// PatternsYAML contains the raw default patterns.yaml.
//
//go:embed patterns.yaml
var PatternsYAML []byte
