package notify

import (
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes one serial port.
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serialNumber,omitempty"`
	Product      string `json:"product,omitempty"`
}

// Lister enumerates serial ports.
type Lister func() ([]PortInfo, error)

// ListPorts enumerates the serial ports visible to the OS.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	out := make([]PortInfo, 0, len(details))
	for _, d := range details {
		out = append(out, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return out, nil
}

// DetectPort picks the first port that looks like an Arduino board, falling
// back to the first USB serial port.
func DetectPort(ports []PortInfo) (string, bool) {
	for _, p := range ports {
		if strings.Contains(p.Product, "Arduino") || strings.Contains(p.Name, "Arduino") {
			return p.Name, true
		}
	}
	for _, p := range ports {
		if p.IsUSB || strings.Contains(p.Product, "USB") || strings.Contains(p.Name, "USB") {
			return p.Name, true
		}
	}
	return "", false
}
