//go:build windows

package config

// windowsEnv maps Unix variable names used in shared configs to their Windows equivalents.
var windowsEnv = map[string]string{
	"HOSTNAME": "COMPUTERNAME",
	"USER":     "USERNAME",
	"HOME":     "USERPROFILE",
}

func mapEnvKey(key string) string {
	if k, ok := windowsEnv[key]; ok {
		return k
	}
	return key
}
