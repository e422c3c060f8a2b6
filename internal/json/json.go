package json

import (
	"encoding/json"

	"github.com/bytedance/sonic"
)

// This package is the single JSON entry point for the repository.
// All wire and audit serialization goes through sonic in std-compatible mode,
// so switching the underlying implementation stays a one-file change.
var api = sonic.ConfigStd

var (
	Marshal       = api.Marshal
	Unmarshal     = api.Unmarshal
	MarshalIndent = api.MarshalIndent
	NewDecoder    = api.NewDecoder
	NewEncoder    = api.NewEncoder
	Valid         = api.Valid
)

// RawMessage is re-exported so callers don't need to import encoding/json
// alongside this package.
type RawMessage = json.RawMessage
