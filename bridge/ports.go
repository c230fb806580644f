package bridge

import (
	"sort"

	gobug "go.bug.st/serial"
)

// getPortsList is replaced in tests.
var getPortsList = gobug.GetPortsList

// ListPorts returns the host's serial ports, sorted by name.
func ListPorts() ([]string, error) {
	ports, err := getPortsList()
	if err != nil {
		return nil, err
	}
	sort.Strings(ports)
	return ports, nil
}
