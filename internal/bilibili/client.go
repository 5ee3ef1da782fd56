package bilibili

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sync"
	"time"

	"github.com/qiuyin/bili-audio-archiver/internal/bilibili/dto"
	"github.com/qiuyin/bili-audio-archiver/internal/http"
)

// Default API endpoints. Overridable for tests.
const (
	defaultAPIBase = "https://api.bilibili.com"

	navPath       = "/x/web-interface/nav"
	viewPath      = "/x/web-interface/view"
	playURLPath   = "/x/player/playurl"
	arcSearchPath = "/x/space/wbi/arc/search"

	// fnvalDash requests the DASH manifest instead of legacy flv/mp4 urls.
	fnvalDash = "80"

	wbiKeyTTL = 10 * time.Minute
)

var (
	uidPattern  = regexp.MustCompile(`^[1-9][0-9]{0,15}$`)
	bvidPattern = regexp.MustCompile(`^BV[0-9A-Za-z]{10}$`)
)

// ValidateUID checks that a creator identifier has the platform's numeric
// UID shape. An invalid identifier is a configuration failure, reported
// before any network activity.
func ValidateUID(uid string) error {
	if !uidPattern.MatchString(uid) {
		return fmt.Errorf("invalid creator uid %q: must be a positive number", uid)
	}
	return nil
}

// ValidateBVID checks that an item identifier has the platform's BV shape.
func ValidateBVID(bvid string) error {
	if !bvidPattern.MatchString(bvid) {
		return fmt.Errorf("invalid video id %q: must look like BV1xx411c7mD", bvid)
	}
	return nil
}

// APIError is a non-zero business code returned inside an API envelope.
//
// The HTTP layer saw a successful response; the platform itself declined
// the request (missing video, region lock, rate limit at the API level).
type APIError struct {
	Code     int
	Message  string
	Endpoint string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %s: code %d: %s", e.Endpoint, e.Code, e.Message)
}

// Client wraps the subset of the Bilibili web API the archiver needs:
// WBI-signed catalog pages, video info and DASH stream manifests.
//
// WBI keys are fetched lazily from the nav endpoint and cached with a short
// TTL; the platform rotates them roughly daily.
type Client struct {
	http    *http.Client
	baseURL string

	mu          sync.Mutex
	imgKey      string
	subKey      string
	keysFetched time.Time
}

// NewClient creates an API client on top of the given transport.
func NewClient(transport *http.Client) *Client {
	return &Client{
		http:    transport,
		baseURL: defaultAPIBase,
	}
}

// SetBaseURL points the client at a different API host. Used by tests and
// by deployments behind an API mirror.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// wbiKeys returns the current img/sub key pair, refreshing from the nav
// endpoint when the cache is cold or stale.
func (c *Client) wbiKeys(ctx context.Context) (string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.imgKey != "" && time.Since(c.keysFetched) < wbiKeyTTL {
		return c.imgKey, c.subKey, nil
	}

	var nav dto.NavResponse
	if err := c.http.GetJSON(ctx, c.baseURL+navPath, &nav); err != nil {
		return "", "", fmt.Errorf("fetch wbi keys: %w", err)
	}

	img := wbiKeyFromURL(nav.Data.WbiImg.ImgURL)
	sub := wbiKeyFromURL(nav.Data.WbiImg.SubURL)
	if img == "" || sub == "" {
		return "", "", fmt.Errorf("fetch wbi keys: empty keys in nav response")
	}

	c.imgKey, c.subKey = img, sub
	c.keysFetched = time.Now()
	return img, sub, nil
}

// signedURL builds a WBI-signed request URL for the given path and params.
func (c *Client) signedURL(ctx context.Context, path string, params url.Values) (string, error) {
	img, sub, err := c.wbiKeys(ctx)
	if err != nil {
		return "", err
	}
	return c.baseURL + path + "?" + signQuery(params, img, sub, time.Now()), nil
}

// VideoInfo fetches per-video metadata (cid, title, publish time, cover).
func (c *Client) VideoInfo(ctx context.Context, bvid string) (*dto.ViewData, error) {
	params := url.Values{}
	params.Set("bvid", bvid)

	reqURL, err := c.signedURL(ctx, viewPath, params)
	if err != nil {
		return nil, err
	}

	var resp dto.ViewResponse
	if err := c.http.GetJSON(ctx, reqURL, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, &APIError{Code: resp.Code, Message: resp.Message, Endpoint: viewPath}
	}
	return &resp.Data, nil
}

// PlayURL fetches the DASH stream manifest for one video page.
func (c *Client) PlayURL(ctx context.Context, bvid string, cid int64) (*dto.PlayURLData, error) {
	params := url.Values{}
	params.Set("bvid", bvid)
	params.Set("cid", fmt.Sprintf("%d", cid))
	params.Set("fnval", fnvalDash)

	reqURL, err := c.signedURL(ctx, playURLPath, params)
	if err != nil {
		return nil, err
	}

	var resp dto.PlayURLResponse
	if err := c.http.GetJSON(ctx, reqURL, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, &APIError{Code: resp.Code, Message: resp.Message, Endpoint: playURLPath}
	}
	return &resp.Data, nil
}

// VideoPage fetches one page of a creator's published video list.
func (c *Client) VideoPage(ctx context.Context, uid string, page, pageSize int) (*dto.ArcSearchData, error) {
	params := url.Values{}
	params.Set("mid", uid)
	params.Set("pn", fmt.Sprintf("%d", page))
	params.Set("ps", fmt.Sprintf("%d", pageSize))

	reqURL, err := c.signedURL(ctx, arcSearchPath, params)
	if err != nil {
		return nil, err
	}

	var resp dto.ArcSearchResponse
	if err := c.http.GetJSON(ctx, reqURL, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, &APIError{Code: resp.Code, Message: resp.Message, Endpoint: arcSearchPath}
	}
	return &resp.Data, nil
}
