package wayback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"alpinesight-server/internal/tiles"
)

const (
	// ReleaseDateFormat is the date layout embedded in catalog item titles.
	ReleaseDateFormat = "2006-01-02"

	titleDateMarker = "(Wayback "
)

// Catalog talks to the Esri World Imagery Wayback catalog: the release
// configuration document plus the per-release tilemap endpoints used for
// local change detection.
type Catalog struct {
	httpClient *http.Client
	configURL  string
	userAgent  string
	logger     *slog.Logger
}

// NewCatalog creates a catalog client with system proxy support.
func NewCatalog(configURL, userAgent string, timeout time.Duration, logger *slog.Logger) *Catalog {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}

	return &Catalog{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		configURL: configURL,
		userAgent: userAgent,
		logger:    logger.With("component", "catalog"),
	}
}

// waybackConfigItem mirrors one entry of the provider's configuration
// document, which is keyed by release number.
type waybackConfigItem struct {
	ItemTitle        string `json:"itemTitle"`
	ItemURL          string `json:"itemURL"`
	MetadataLayerURL string `json:"metadataLayerUrl"`
	LayerIdentifier  string `json:"layerIdentifier"`
}

// Snapshots returns the snapshot descriptors for a query. ModeAll ignores
// the coordinate; ModeLocalChanges walks the tilemap endpoints to keep only
// releases where the imagery changed at that tile.
func (c *Catalog) Snapshots(ctx context.Context, mode Mode, coord tiles.Coordinate) ([]SnapshotDescriptor, error) {
	all, err := c.fetchConfig(ctx)
	if err != nil {
		return nil, err
	}

	if mode == ModeLocalChanges {
		return c.localChanges(ctx, all, coord), nil
	}
	return all, nil
}

// fetchConfig downloads and parses the release configuration document.
// Descriptors are returned newest release first.
func (c *Catalog) fetchConfig(ctx context.Context) ([]SnapshotDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.configURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch wayback config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wayback config request failed with status: %d", resp.StatusCode)
	}

	var entries map[string]waybackConfigItem
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("parse wayback config: %w", err)
	}

	descriptors := make([]SnapshotDescriptor, 0, len(entries))
	for key, item := range entries {
		desc, err := parseConfigItem(key, item)
		if err != nil {
			// Skip entries that can't be parsed
			c.logger.Warn("skipping unparseable catalog entry", "key", key, "error", err)
			continue
		}
		descriptors = append(descriptors, desc)
	}

	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].ReleaseNum > descriptors[j].ReleaseNum
	})

	return descriptors, nil
}

// parseConfigItem converts one raw config entry into a descriptor, deriving
// the release date from the title: "World Imagery (Wayback 2023-01-15)".
func parseConfigItem(key string, item waybackConfigItem) (SnapshotDescriptor, error) {
	releaseNum, err := strconv.Atoi(key)
	if err != nil {
		return SnapshotDescriptor{}, fmt.Errorf("release number %q: %w", key, err)
	}

	idx := strings.Index(item.ItemTitle, titleDateMarker)
	if idx == -1 {
		return SnapshotDescriptor{}, fmt.Errorf("could not parse date from title: %s", item.ItemTitle)
	}

	dateStart := idx + len(titleDateMarker)
	dateEnd := strings.Index(item.ItemTitle[dateStart:], ")")
	if dateEnd == -1 {
		return SnapshotDescriptor{}, fmt.Errorf("could not parse date from title: %s", item.ItemTitle)
	}

	dateStr := item.ItemTitle[dateStart : dateStart+dateEnd]
	date, err := time.Parse(ReleaseDateFormat, dateStr)
	if err != nil {
		return SnapshotDescriptor{}, fmt.Errorf("could not parse date %s: %w", dateStr, err)
	}

	return SnapshotDescriptor{
		ReleaseNum:      releaseNum,
		ReleaseDate:     dateStr,
		ReleaseDatetime: date.UnixMilli(),
		Title:           item.ItemTitle,
		URLTemplate:     item.ItemURL,
		MetadataURL:     item.MetadataLayerURL,
		Provider:        item.LayerIdentifier,
	}, nil
}

// TileDate queries a release's metadata layer for the acquisition date of
// the imagery under a tile (the SRC_DATE2 attribute at the tile center).
// Falls back to the release date when the release carries no metadata layer
// or the service has no feature for the point; only transport and decode
// problems surface as errors.
func (c *Catalog) TileDate(ctx context.Context, desc SnapshotDescriptor, coord tiles.Coordinate) (time.Time, error) {
	fallback := time.UnixMilli(desc.ReleaseDatetime).UTC()

	queryURL := pointQueryURL(desc, coord)
	if queryURL == "" {
		return fallback, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return fallback, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fallback, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fallback, nil
	}

	var result struct {
		Features []struct {
			Attributes struct {
				SrcDate2 int64 `json:"SRC_DATE2"`
			} `json:"attributes"`
		} `json:"features"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fallback, err
	}

	if len(result.Features) > 0 && result.Features[0].Attributes.SrcDate2 > 0 {
		return time.UnixMilli(result.Features[0].Attributes.SrcDate2).UTC(), nil
	}
	return fallback, nil
}

// pointQueryURL builds the metadata layer query for a tile center. The
// layer index is the provider's scale level for the zoom, capped at 13.
func pointQueryURL(desc SnapshotDescriptor, coord tiles.Coordinate) string {
	if desc.MetadataURL == "" {
		return ""
	}

	scale := min(13, tiles.MaxLevel-coord.Z)
	center := coord.Center()

	params := url.Values{}
	params.Set("f", "json")
	params.Set("where", "1=1")
	params.Set("outFields", "SRC_DATE2")
	params.Set("returnGeometry", "false")
	params.Set("geometryType", "esriGeometryPoint")
	params.Set("spatialRel", "esriSpatialRelIntersects")
	params.Set("geometry", fmt.Sprintf(`{"spatialReference":{"wkid":%d},"x":%f,"y":%f}`,
		tiles.EpsgNumber, center.X, center.Y))

	return fmt.Sprintf("%s/%d/query?%s", strings.TrimSuffix(desc.MetadataURL, "/"), scale, params.Encode())
}

// localChanges walks releases newest-first and keeps only those where the
// tilemap reports a change at the queried tile. The tilemap "select" field
// names the release that actually holds the changed imagery, letting the
// walk skip runs of unchanged re-publications.
func (c *Catalog) localChanges(ctx context.Context, all []SnapshotDescriptor, coord tiles.Coordinate) []SnapshotDescriptor {
	if len(all) == 0 {
		return nil
	}

	byNum := make(map[int]SnapshotDescriptor, len(all))
	position := make(map[int]int, len(all))
	for i, desc := range all {
		byNum[desc.ReleaseNum] = desc
		position[desc.ReleaseNum] = i
	}

	var changed []SnapshotDescriptor
	current := all[0].ReleaseNum

	for current > 0 {
		desc, ok := byNum[current]
		if !ok {
			break
		}

		available, selectNum, err := c.checkTileMap(ctx, tileMapURL(desc, coord))
		if err != nil {
			c.logger.Warn("tilemap check failed, stopping walk", "release", current, "error", err)
			break
		}
		if !available {
			// No imagery at this tile, stop
			break
		}

		chosen := current
		if selectNum > 0 {
			chosen = selectNum
		}
		if with, ok := byNum[chosen]; ok {
			changed = append(changed, with)
		}

		idx, ok := position[chosen]
		if !ok || idx+1 >= len(all) {
			break
		}
		current = all[idx+1].ReleaseNum
	}

	return changed
}

// checkTileMap queries a tilemap endpoint and reports whether the tile has
// imagery, plus the release the provider points at via the select field.
func (c *Catalog) checkTileMap(ctx context.Context, tileMapURL string) (available bool, selectNum int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tileMapURL, nil)
	if err != nil {
		return false, 0, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, 0, fmt.Errorf("tilemap request failed with status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, 0, err
	}

	var result struct {
		Data   []int `json:"data"`
		Select []int `json:"select"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return false, 0, err
	}

	if len(result.Select) > 0 {
		selectNum = result.Select[0]
	}

	available = len(result.Data) > 0 && result.Data[0] == 1
	return available, selectNum, nil
}

// tileMapURL derives a release's tilemap endpoint from its tile URL
// template: .../MapServer/tile/{level}/{row}/{col} -> .../MapServer/tilemap/z/y/x.
func tileMapURL(desc SnapshotDescriptor, coord tiles.Coordinate) string {
	const keyText = "/tile/"
	idx := strings.Index(desc.URLTemplate, keyText)
	if idx == -1 {
		return ""
	}
	base := desc.URLTemplate[:idx]
	return fmt.Sprintf("%s/tilemap/%d/%d/%d", base, coord.Z, coord.Y, coord.X)
}
