//go:build !(linux && amd64)

package roofline

// Run needs the ptrace host, which is only available on linux/amd64.
func Run(target string, args []string, cfg Config, opts ...Option) (*Engine, error) {
	return nil, ErrUnsupportedArch
}
