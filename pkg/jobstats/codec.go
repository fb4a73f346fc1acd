package jobstats

import (
	"encoding/binary"
	"encoding/json"
)

func encodeTaskEvent(evt TaskEvent) ([]byte, error) {
	return json.Marshal(evt)
}

func decodeTaskEvent(data []byte) (TaskEvent, error) {
	var evt TaskEvent
	err := json.Unmarshal(data, &evt)
	return evt, err
}

func encodeCounter(v int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

func decodeCounter(data []byte) int64 {
	if len(data) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(data))
}
