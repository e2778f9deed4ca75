// Package env provides the composite environment-variable map tasks are
// run with: overlay variables layered on top of a package's base set,
// later writers winning (§4.3 "Overlay Resolution").
package env

// EnvironmentVariableMap is a map of env variables and their values.
type EnvironmentVariableMap map[string]string

// Union takes another EnvironmentVariableMap and adds it into the
// receiver. It overwrites values that already exist.
func (evm EnvironmentVariableMap) Union(another EnvironmentVariableMap) {
	for k, v := range another {
		evm[k] = v
	}
}
