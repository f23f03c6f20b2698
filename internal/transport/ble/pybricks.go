package ble

import (
	"encoding/binary"
	"fmt"
)

// Pybricks BLE profile.
const (
	ServiceUUID      = "c5f50001-8280-46da-89f4-6d8051e4aeef"
	CommandEventUUID = "c5f50002-8280-46da-89f4-6d8051e4aeef"
	CapabilitiesUUID = "c5f50003-8280-46da-89f4-6d8051e4aeef"
)

const (
	cmdStopUserProgram      byte = 0
	cmdStartUserProgram     byte = 1
	cmdStartREPL            byte = 2
	cmdWriteUserProgramMeta byte = 3
	cmdWriteUserRAM         byte = 4
	cmdWriteStdin           byte = 6
)

const (
	eventStatusReport byte = 0
	eventWriteStdout  byte = 1
)

// StatusUserProgramRunning is set in status reports while a program runs.
const StatusUserProgramRunning uint32 = 1 << 6

// DefaultMaxWriteSize is the BLE minimum ATT payload, used when the hub
// does not report capabilities.
const DefaultMaxWriteSize = 20

// Capabilities is the hub capabilities characteristic.
type Capabilities struct {
	MaxWriteSize   int
	Flags          uint32
	MaxProgramSize uint32
}

// ParseCapabilities decodes max write size (uint16), flags (uint32) and
// max program size (uint32), little-endian.
func ParseCapabilities(b []byte) (Capabilities, error) {
	if len(b) < 10 {
		return Capabilities{}, fmt.Errorf("capabilities: need 10 bytes, got %d", len(b))
	}
	return Capabilities{
		MaxWriteSize:   int(binary.LittleEndian.Uint16(b[0:2])),
		Flags:          binary.LittleEndian.Uint32(b[2:6]),
		MaxProgramSize: binary.LittleEndian.Uint32(b[6:10]),
	}, nil
}

// stdinPackets wraps data in WRITE_STDIN commands no larger than maxWrite.
func stdinPackets(data []byte, maxWrite int) [][]byte {
	if maxWrite < 2 {
		maxWrite = DefaultMaxWriteSize
	}
	chunk := maxWrite - 1
	var packets [][]byte
	for start := 0; start < len(data); start += chunk {
		end := min(start+chunk, len(data))
		packet := make([]byte, 0, 1+end-start)
		packet = append(packet, cmdWriteStdin)
		packet = append(packet, data[start:end]...)
		packets = append(packets, packet)
	}
	return packets
}

// programPackets builds a download: clear the program size, write RAM in
// chunks, then commit the final size.
func programPackets(program []byte, maxWrite int) [][]byte {
	if maxWrite < 6 {
		maxWrite = DefaultMaxWriteSize
	}
	chunk := maxWrite - 5

	packets := [][]byte{programMeta(0)}
	for offset := 0; offset < len(program); offset += chunk {
		end := min(offset+chunk, len(program))
		packet := make([]byte, 5, 5+end-offset)
		packet[0] = cmdWriteUserRAM
		binary.LittleEndian.PutUint32(packet[1:5], uint32(offset))
		packet = append(packet, program[offset:end]...)
		packets = append(packets, packet)
	}
	return append(packets, programMeta(uint32(len(program))))
}

func programMeta(size uint32) []byte {
	packet := make([]byte, 5)
	packet[0] = cmdWriteUserProgramMeta
	binary.LittleEndian.PutUint32(packet[1:5], size)
	return packet
}

// parseEvent splits a notification into its event type and payload.
func parseEvent(b []byte) (byte, []byte, bool) {
	if len(b) == 0 {
		return 0, nil, false
	}
	return b[0], b[1:], true
}

// parseStatus reads the flags of a status report payload.
func parseStatus(payload []byte) (uint32, bool) {
	if len(payload) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(payload[:4]), true
}
