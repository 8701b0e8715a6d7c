package format

// Align16 returns n aligned up to the next 16-byte boundary.
//
// Example:
//
//	Align16(0)  = 0
//	Align16(1)  = 16
//	Align16(16) = 16
//	Align16(17) = 32
func Align16(n int) int {
	return (n + AlignmentMask) &^ AlignmentMask
}

// AlignDown16 returns n rounded down to a 16-byte boundary.
func AlignDown16(n int) int {
	return n &^ AlignmentMask
}

// IsAligned16 reports whether n is a multiple of 16.
func IsAligned16(n int) bool {
	return n&AlignmentMask == 0
}
