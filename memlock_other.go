//go:build !linux && !darwin

package sealbackup

func lockMemory(b []byte) error   { return nil }
func unlockMemory(b []byte) error { return nil }
