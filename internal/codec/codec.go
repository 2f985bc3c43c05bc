// Package codec provides encode/decode interfaces for backup payloads.
package codec

import "fmt"

// Codec encodes and decodes values for backup storage.
type Codec interface {
	// Marshal serializes v into bytes.
	Marshal(v any) ([]byte, error)
	// Unmarshal deserializes data into v (must be a pointer).
	Unmarshal(data []byte, v any) error
	// Name returns the codec identifier recorded in backups.
	Name() string
}

// Default is the default codec instance.
var Default Codec = JSON{}

// ByName returns the codec registered under name.
func ByName(name string) (Codec, error) {
	switch name {
	case "", JSON{}.Name():
		return JSON{}, nil
	case MsgPack{}.Name():
		return MsgPack{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
