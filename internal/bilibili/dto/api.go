// Package dto contains the wire-format structures of the Bilibili web API
// responses consumed by the archiver.
//
// Every endpoint wraps its payload in a common envelope with a numeric code
// (0 = success) and a human-readable message.
package dto

// Envelope is the common response wrapper shared by all API endpoints.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NavResponse is the /x/web-interface/nav response. Only the WBI key
// image URLs are consumed; they are served even to anonymous sessions.
type NavResponse struct {
	Envelope
	Data NavData `json:"data"`
}

// NavData holds the navigation payload.
type NavData struct {
	WbiImg WbiImg `json:"wbi_img"`
}

// WbiImg carries the two image URLs whose basenames are the WBI keys.
type WbiImg struct {
	ImgURL string `json:"img_url"`
	SubURL string `json:"sub_url"`
}

// ViewResponse is the /x/web-interface/view response for one video.
type ViewResponse struct {
	Envelope
	Data ViewData `json:"data"`
}

// ViewData holds per-video metadata.
type ViewData struct {
	Bvid    string `json:"bvid"`
	Cid     int64  `json:"cid"`
	Title   string `json:"title"`
	Pubdate int64  `json:"pubdate"`
	Pic     string `json:"pic"`
}

// PlayURLResponse is the /x/player/playurl response carrying the DASH
// stream manifest for one video.
type PlayURLResponse struct {
	Envelope
	Data PlayURLData `json:"data"`
}

// PlayURLData holds the playable stream payload.
type PlayURLData struct {
	Dash Dash `json:"dash"`
}

// Dash is the DASH manifest subset the archiver needs.
type Dash struct {
	Audio []DashAudio `json:"audio"`
}

// DashAudio describes one audio variant of the DASH manifest.
type DashAudio struct {
	ID        int      `json:"id"`
	BaseURL   string   `json:"baseUrl"`
	BackupURL []string `json:"backupUrl"`
	Bandwidth int64    `json:"bandwidth"`
	MimeType  string   `json:"mimeType"`
	Codecs    string   `json:"codecs"`
}

// ArcSearchResponse is the /x/space/wbi/arc/search response: one page of a
// creator's published video list.
type ArcSearchResponse struct {
	Envelope
	Data ArcSearchData `json:"data"`
}

// ArcSearchData holds one catalog page.
type ArcSearchData struct {
	List ArcList `json:"list"`
	Page ArcPage `json:"page"`
}

// ArcList wraps the video entries of a page.
type ArcList struct {
	Vlist []ArcVideo `json:"vlist"`
}

// ArcPage carries pagination state: current page number, page size and the
// server's total-count hint.
type ArcPage struct {
	Pn    int `json:"pn"`
	Ps    int `json:"ps"`
	Count int `json:"count"`
}

// ArcVideo is one listing entry of a creator's catalog page.
type ArcVideo struct {
	Bvid    string `json:"bvid"`
	Title   string `json:"title"`
	Created int64  `json:"created"`
	Pic     string `json:"pic"`
	Length  string `json:"length"`
}
