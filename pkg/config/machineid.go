package config

import (
	"github.com/denisbrodbeck/machineid"
)

const machineIDAppKey = "spc.go"

// MachineID retrieves an ID identifying the machine, protected so the raw
// machine ID is not leaked into topics. It falls back to "local".
func MachineID() string {
	id, err := machineid.ProtectedID(machineIDAppKey)
	if err != nil {
		return "local"
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}
