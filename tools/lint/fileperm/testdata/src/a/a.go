package a

import "os"

const mode = 0o644

func write() {
	_ = os.WriteFile("a.txt", nil, 0o600) // want `use fileutil.ReadWriteUserPermission instead of hardcoded file permission 0o600`
	_ = os.MkdirAll("dir", 0755)          // want `use fileutil.ReadWriteExecuteUserReadExecuteOthers instead of hardcoded file permission 0755`
	_ = os.Chmod("a.txt", 0o700)          // want `use a named file permission constant instead of hardcoded 0o700`
	_ = os.WriteFile("b.txt", nil, mode)
	f, _ := os.OpenFile("c.txt", os.O_RDONLY, 0)
	_ = f
}
