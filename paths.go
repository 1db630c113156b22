package ftpc

import "strings"

// pathResolver turns caller paths into the absolute paths sent to the
// server. When a base directory is locked, every path is confined below it:
// "/" refers to the base and the working directory is tracked relative to it.
type pathResolver struct {
	base string
	wd   string
}

func newPathResolver() pathResolver {
	return pathResolver{base: "/", wd: "/"}
}

// lock makes dir the base directory and resets the working directory to
// its root.
func (p *pathResolver) lock(dir string) {
	dir = strings.TrimRight(dir, "/")
	if !strings.HasPrefix(dir, "/") {
		dir = "/" + dir
	}
	p.base = dir
	p.wd = "/"
}

// abs resolves path against the base and working directories.
func (p *pathResolver) abs(path string) string {
	if p.base == "/" {
		return path
	}
	base := strings.TrimRight(p.base, "/")
	if strings.HasPrefix(path, "/") {
		return base + path
	}
	return base + strings.TrimRight(p.wd, "/") + "/" + path
}

// chdir records a successful change of directory.
func (p *pathResolver) chdir(dir string) {
	if strings.HasPrefix(dir, "/") {
		p.wd = dir
		return
	}
	p.wd = strings.TrimRight(p.wd, "/") + "/" + dir
}
