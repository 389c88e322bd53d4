package appidentityassets

import _ "embed"

// YAML is the embedded copy of `.fulmen/app.yaml`, used when no identity file
// can be found next to the binary.
//
// Keep it identical to `.fulmen/app.yaml` at the repository root.
//
//go:embed app.yaml
var YAML []byte
