package interfaces

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration that marshals to JSON as a string like "100ms".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(j []byte) (err error) {
	var s string
	if err = json.Unmarshal(j, &s); err != nil {
		var n int64
		if e := json.Unmarshal(j, &n); e != nil {
			return fmt.Errorf("duration: expected string or number: %w", err)
		}
		*d = Duration(n)
		return nil
	}

	var v time.Duration
	v, err = time.ParseDuration(s)
	if err != nil {
		return
	}
	*d = Duration(v)
	return
}

func (d Duration) D() time.Duration { return time.Duration(d) }
