package utrace

// A PieOffsetter can determine the PIE offset for a given PID.
// *bininfo.BinFile implements it.
type PieOffsetter interface {
	// PieOffset returns the load offset of the executable in process pid, or
	// 0 if it is not position-independent.
	PieOffset(pid int) (uint64, error)
}

// NoPie is a PieOffsetter for executables linked at a fixed address.
type NoPie struct{}

// PieOffset always returns 0.
func (NoPie) PieOffset(pid int) (uint64, error) {
	return 0, nil
}

// A relocation converts between addresses of the executable file and
// addresses in the running process.
type relocation uint64

func newRelocation(pie PieOffsetter, pid int) (relocation, error) {
	off, err := pie.PieOffset(pid)
	return relocation(off), err
}

// Runtime returns the process address of a static address.
func (r relocation) Runtime(static uint64) uint64 {
	return static + uint64(r)
}

// Static returns the file address of a process address.
func (r relocation) Static(addr uint64) uint64 {
	return addr - uint64(r)
}
