package engine

import (
	"fmt"

	"github.com/segmentio/encoding/json"
)

const journalVersion = 1

type cmdRecord struct {
	V   uint8   `json:"v"`
	Seq uint64  `json:"seq"`
	Cmd Command `json:"cmd"`
}

// JSONCmdCodec stores journal records as JSON objects {v, seq, cmd}.
type JSONCmdCodec struct{}

func (JSONCmdCodec) Encode(dst []byte, seq uint64, cmd Command) ([]byte, error) {
	b, err := json.Marshal(cmdRecord{V: journalVersion, Seq: seq, Cmd: cmd})
	if err != nil {
		return nil, err
	}
	return append(dst, b...), nil
}

func (JSONCmdCodec) Decode(payload []byte) (uint64, Command, error) {
	var rec cmdRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return 0, Command{}, err
	}
	if rec.V != journalVersion {
		return 0, Command{}, fmt.Errorf("journal: unsupported record version %d", rec.V)
	}
	if !rec.Cmd.Type.mutates() {
		return 0, Command{}, fmt.Errorf("journal: unexpected command %s at seq %d", rec.Cmd.Type, rec.Seq)
	}
	return rec.Seq, rec.Cmd, nil
}
