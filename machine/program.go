package machine

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"mmiosim/interfaces"
)

// Segment is a run of consecutive words starting at Address.
type Segment struct {
	Address interfaces.HexWord   `json:"address"`
	Words   []interfaces.HexWord `json:"words"`
}

// Program is an assembled memory image handed over by the Processor front end.
type Program struct {
	Segments     []Segment          `json:"segments"`
	StackPointer interfaces.HexWord `json:"sp,omitempty"`
}

func LoadProgramFile(path string) (p Program, err error) {
	var b []byte
	b, err = ioutil.ReadFile(path)
	if err != nil {
		return
	}
	if err = json.Unmarshal(b, &p); err != nil {
		err = fmt.Errorf("machine: program %s: %w", path, err)
	}
	return
}
