package runtime

// SIMDProbeModule is the smallest module that only validates on engines with
// fixed-width SIMD: one function returning v128 built from
// i32.const 0, i8x16.splat, i8x16.popcnt.
var SIMDProbeModule = []byte{
	0x00, 0x61, 0x73, 0x6d, // \0asm
	0x01, 0x00, 0x00, 0x00, // version 1
	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7b, // type section: () -> v128
	0x03, 0x02, 0x01, 0x00, // function section
	0x0a, 0x0a, 0x01, 0x08, 0x00, // code section, one body
	0x41, 0x00, // i32.const 0
	0xfd, 0x0f, // i8x16.splat
	0xfd, 0x62, // i8x16.popcnt
	0x0b, // end
}

// ThreadEligible is the conjunction the threaded runtime needs.
func ThreadEligible(sharedArrayBuffer, atomics, workers bool) bool {
	return sharedArrayBuffer && atomics && workers
}
