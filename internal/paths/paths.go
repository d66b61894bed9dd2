package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// AppPaths captures the canonical on-disk locations lspup works with.
type AppPaths struct {
	// DataDir is the per-user root for everything lspup persists.
	DataDir string
	// BinDir holds the managed server binary and its metadata sidecar.
	BinDir string
	// LogsDir holds timestamped log files.
	LogsDir string
	// ConfigFile is the default location of lspup.yaml.
	ConfigFile string
}

// Resolve determines the data directory, honouring the LSPUP_DIR override.
func Resolve() (AppPaths, error) {
	root, err := dataRoot()
	if err != nil {
		return AppPaths{}, err
	}
	return AppPaths{
		DataDir:    root,
		BinDir:     filepath.Join(root, "bin"),
		LogsDir:    filepath.Join(root, "logs"),
		ConfigFile: filepath.Join(root, "lspup.yaml"),
	}, nil
}

func dataRoot() (string, error) {
	if override, ok := os.LookupEnv("LSPUP_DIR"); ok && override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", fmt.Errorf("resolve LSPUP_DIR: %w", err)
		}
		return abs, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("detect user home: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "lspup"), nil
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "lspup"), nil
		}
		return filepath.Join(home, "AppData", "Local", "lspup"), nil
	default:
		return filepath.Join(home, ".local", "share", "lspup"), nil
	}
}

// EnsureDirs creates the bin and logs directories if absent.
func (p AppPaths) EnsureDirs() error {
	for _, dir := range []string{p.BinDir, p.LogsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}
