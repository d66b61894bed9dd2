// Package install keeps the managed server binary present and current.
// It downloads release assets to a temp path and renames them into place,
// so the final path only ever holds a complete, executable file.
package install

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/singleflight"

	"lspup/internal/httpx"
	"lspup/internal/notify"
	"lspup/internal/paths"
	"lspup/internal/release"
)

// Installer orchestrates release resolution, download, and atomic
// replacement of the managed binary.
type Installer struct {
	// Dir is the storage directory for the binary and its sidecar.
	Dir string
	// Repo is the GitHub "owner/name" releases are fetched from.
	Repo string
	// AssetName is the exact release asset to install; it doubles as the
	// local file name.
	AssetName string

	Client *httpx.Client
	Notify notify.Sink
	Logf   func(format string, args ...any)

	// resolveLatest is a seam for tests.
	resolveLatest func(ctx context.Context, client *httpx.Client, repo, assetName string) (release.Asset, error)

	group singleflight.Group
}

// New builds an installer. Notify and Logf may be left nil.
func New(dir, repo, assetName string, client *httpx.Client) *Installer {
	return &Installer{
		Dir:           dir,
		Repo:          repo,
		AssetName:     assetName,
		Client:        client,
		Notify:        notify.Discard{},
		Logf:          func(string, ...any) {},
		resolveLatest: release.LatestAsset,
	}
}

// BinaryPath returns where the managed binary lives once installed.
func (i *Installer) BinaryPath() string {
	return filepath.Join(i.Dir, i.AssetName)
}

func (i *Installer) metaPath() string {
	return i.BinaryPath() + ".meta.json"
}

// Ensure makes sure the binary is installed and up to date, returning its
// path. force skips the cache check and always downloads. Concurrent calls
// are collapsed onto a single in-flight install; late callers share its
// result rather than racing a second writer on the same destination.
func (i *Installer) Ensure(ctx context.Context, force bool) (string, error) {
	v, err, _ := i.group.Do(i.AssetName, func() (any, error) {
		return i.ensure(ctx, force)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (i *Installer) ensure(ctx context.Context, force bool) (string, error) {
	if err := os.MkdirAll(i.Dir, 0o755); err != nil {
		return "", fmt.Errorf("prepare install directory: %w", err)
	}

	binPath := i.BinaryPath()
	exists, err := paths.FileExists(binPath)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", binPath, err)
	}

	i.Notify.Progress(notify.Update{Message: "Checking latest release"})
	asset, err := i.resolveLatest(ctx, i.Client, i.Repo, i.AssetName)
	if err != nil {
		// Offline degradation: a stale binary beats a hard failure.
		if exists && !force {
			i.Logf("release check failed, using installed binary: %v", err)
			i.Notify.Infof("offline: using installed %s", i.AssetName)
			return binPath, nil
		}
		return "", err
	}

	cachedTag := ""
	if meta, ok := readMeta(i.metaPath()); ok {
		cachedTag = meta.Tag
	}
	if !shouldRefresh(force, cachedTag, asset.Tag, exists) {
		i.Logf("binary %s already at %s", i.AssetName, asset.Tag)
		return binPath, nil
	}

	if err := i.download(ctx, asset, binPath); err != nil {
		return "", err
	}

	if err := writeMeta(i.metaPath(), Meta{Tag: asset.Tag, DownloadedAt: time.Now().UTC()}); err != nil {
		return "", err
	}

	i.Logf("installed %s %s", i.AssetName, asset.Tag)
	i.Notify.Infof("installed %s %s", i.AssetName, asset.Tag)
	return binPath, nil
}

func (i *Installer) download(ctx context.Context, asset release.Asset, binPath string) error {
	i.Notify.Progress(notify.Update{Message: fmt.Sprintf("Downloading %s %s", asset.Name, asset.Tag)})

	tmp, err := os.CreateTemp(i.Dir, asset.Name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp download: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer func() { _ = os.Remove(tmpPath) }()

	var lastPercent float64
	onProgress := func(written, total int64) {
		if total <= 0 {
			return
		}
		percent := float64(written) / float64(total) * 100
		if percent-lastPercent >= 1 || written == total {
			i.Notify.Progress(notify.Update{IncrementPercent: percent - lastPercent})
			lastPercent = percent
		}
	}

	if err := i.Client.Download(ctx, asset.URL, tmpPath, onProgress); err != nil {
		return fmt.Errorf("download %s: %w", asset.URL, err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0o755); err != nil {
			return fmt.Errorf("mark executable: %w", err)
		}
	}

	if err := os.Rename(tmpPath, binPath); err != nil {
		return fmt.Errorf("install binary: %w", err)
	}
	return nil
}

// Status describes the installed state for display purposes.
type Status struct {
	Asset        string    `json:"asset"`
	Path         string    `json:"path"`
	Installed    bool      `json:"installed"`
	Tag          string    `json:"tag,omitempty"`
	DownloadedAt time.Time `json:"downloaded_at,omitzero"`
}

// CurrentStatus reports what is installed without touching the network.
func (i *Installer) CurrentStatus() (Status, error) {
	st := Status{Asset: i.AssetName, Path: i.BinaryPath()}

	exists, err := paths.FileExists(st.Path)
	if err != nil {
		return Status{}, fmt.Errorf("stat %s: %w", st.Path, err)
	}
	st.Installed = exists

	if meta, ok := readMeta(i.metaPath()); ok {
		st.Tag = meta.Tag
		st.DownloadedAt = meta.DownloadedAt
	}
	return st, nil
}
