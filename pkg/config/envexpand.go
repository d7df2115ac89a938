package config

import "os"

// ExpandEnv expands ${VAR}/$VAR references in YAML content using the
// standard library, before the document is parsed. Missing variables expand
// to the empty string; validation is responsible for catching required
// fields left empty this way.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
