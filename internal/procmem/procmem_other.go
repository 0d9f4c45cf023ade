//go:build !windows

package procmem

// Attach on non-windows platforms always fails: the host only runs on
// Windows and attachment over the network is not a thing.
func Attach(processName, moduleName string) (Process, uintptr, *OSError) {
	return nil, 0, &OSError{Kind: ProcessNotFound, Msg: "host attachment is windows-only"}
}
