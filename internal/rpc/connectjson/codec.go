// Package connectjson provides a plain-JSON codec for Connect streams so
// handlers can exchange ordinary Go structs without protobuf definitions.
package connectjson

import (
	"encoding/json"

	"github.com/bufbuild/connect-go"
)

// Codec implements connect.Codec over encoding/json.
type Codec struct{}

var _ connect.Codec = Codec{}

// Name reports "json" so content-type negotiation selects the JSON wire form.
func (Codec) Name() string { return "json" }

func (Codec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (Codec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
