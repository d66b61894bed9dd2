// Package release resolves the latest published release of a GitHub
// repository to a concrete downloadable asset.
package release

import (
	"context"
	"errors"
	"fmt"

	"lspup/internal/httpx"
)

// apiBase is a package variable so tests can point lookups at a local server.
var apiBase = "https://api.github.com"

// ErrAssetNotFound is returned when the latest release exists but does not
// carry the requested asset. There is no fallback to older releases.
var ErrAssetNotFound = errors.New("asset not found in latest release")

// Asset is a downloadable artifact attached to a published release.
type Asset struct {
	Tag  string
	Name string
	URL  string
}

type githubAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

type githubRelease struct {
	TagName string        `json:"tag_name"`
	Assets  []githubAsset `json:"assets"`
}

// LatestAsset queries the releases-latest endpoint for repo ("owner/name")
// and locates the asset whose name exactly equals assetName.
func LatestAsset(ctx context.Context, client *httpx.Client, repo, assetName string) (Asset, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/releases/latest", apiBase, repo)

	var rel githubRelease
	if err := client.FetchJSON(ctx, endpoint, &rel); err != nil {
		return Asset{}, fmt.Errorf("fetch latest release for %s: %w", repo, err)
	}

	for _, asset := range rel.Assets {
		if asset.Name == assetName {
			return Asset{
				Tag:  rel.TagName,
				Name: asset.Name,
				URL:  asset.BrowserDownloadURL,
			}, nil
		}
	}
	return Asset{}, fmt.Errorf("release %s of %s: %w: %s", rel.TagName, repo, ErrAssetNotFound, assetName)
}
