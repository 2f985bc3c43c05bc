package sealbackup

// zero overwrites a byte slice in memory with zeros
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
