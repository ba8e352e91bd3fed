//go:build windows

package hot

import (
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/openfutures/tickd/errors"
)

// getMemoryStats returns total and available memory in bytes (Windows).
func getMemoryStats() (total uint64, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "get memory stats")
	}
	return v.Total, v.Available, nil
}
