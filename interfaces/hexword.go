package interfaces

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// HexWord is a 32-bit address or register value that marshals to JSON as a "0x%08x" string and
// unmarshals from either a string (any Go integer literal form) or a plain JSON number.
type HexWord uint32

func (w HexWord) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.String())
}

func (w *HexWord) UnmarshalJSON(j []byte) (err error) {
	var s string
	if err = json.Unmarshal(j, &s); err != nil {
		// not a string; try a number:
		var n uint32
		if e := json.Unmarshal(j, &n); e != nil {
			return fmt.Errorf("hexword: expected string or number: %w", err)
		}
		*w = HexWord(n)
		return nil
	}

	var n uint64
	n, err = strconv.ParseUint(s, 0, 32)
	if err != nil {
		return
	}
	*w = HexWord(n)
	return
}

func (w HexWord) String() string {
	return fmt.Sprintf("0x%08x", uint32(w))
}
