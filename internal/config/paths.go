package config

import "path/filepath"

func pick(explicit, dir, name string) string {
	if explicit != "" {
		return explicit
	}
	if dir == "" || dir == "." {
		return name
	}
	return filepath.Join(dir, name)
}
