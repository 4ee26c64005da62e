package rwlock

import (
	"bytes"
	"runtime"
	"strconv"
)

// gid returns the current goroutine's id, parsed from the first line of the
// runtime stack header ("goroutine 123 [running]:"). The runtime offers no
// cheaper supported way to identify a goroutine.
func gid() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
