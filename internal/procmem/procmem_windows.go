//go:build windows

package procmem

import (
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

type winProcess struct {
	handle windows.Handle
}

// Attach finds the named process, locates the named module's base address
// and opens a read-only handle.
func Attach(processName, moduleName string) (Process, uintptr, *OSError) {
	pid, oserr := findProcess(processName)
	if oserr != nil {
		return nil, 0, oserr
	}

	base, oserr := findModuleBase(pid, moduleName)
	if oserr != nil {
		return nil, 0, oserr
	}

	handle, err := windows.OpenProcess(
		windows.PROCESS_VM_READ|windows.PROCESS_QUERY_INFORMATION, false, pid)
	if err != nil {
		return nil, 0, &OSError{Kind: SnapshotFailed, Msg: err.Error()}
	}

	return &winProcess{handle: handle}, base, nil
}

func findProcess(name string) (uint32, *OSError) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return 0, &OSError{Kind: SnapshotFailed, Msg: err.Error()}
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	for err = windows.Process32First(snapshot, &entry); err == nil; err = windows.Process32Next(snapshot, &entry) {
		if strings.EqualFold(windows.UTF16ToString(entry.ExeFile[:]), name) {
			return entry.ProcessID, nil
		}
	}
	return 0, &OSError{Kind: ProcessNotFound}
}

func findModuleBase(pid uint32, name string) (uintptr, *OSError) {
	snapshot, err := windows.CreateToolhelp32Snapshot(
		windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, pid)
	if err != nil {
		return 0, &OSError{Kind: SnapshotFailed, Msg: err.Error()}
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ModuleEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	for err = windows.Module32First(snapshot, &entry); err == nil; err = windows.Module32Next(snapshot, &entry) {
		if strings.EqualFold(windows.UTF16ToString(entry.Module[:]), name) {
			return entry.ModBaseAddr, nil
		}
	}
	return 0, &OSError{Kind: ModuleNotFound}
}

func (p *winProcess) ReadAt(address uintptr, buf []byte) *OSError {
	var read uintptr
	err := windows.ReadProcessMemory(p.handle, address, &buf[0], uintptr(len(buf)), &read)
	if err != nil {
		return &OSError{Kind: ReadMemoryFailed, Msg: err.Error()}
	}
	if read != uintptr(len(buf)) {
		return &OSError{Kind: ReadMemoryFailed, Msg: "short read"}
	}
	return nil
}

func (p *winProcess) Close() {
	windows.CloseHandle(p.handle)
}
