package bilibili

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// mixinKeyEncTab is the fixed permutation table used to derive the mixin
// key from the concatenated img and sub keys.
var mixinKeyEncTab = [64]int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35, 27, 43, 5, 49,
	33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13, 37, 48, 7, 16, 24, 55, 40,
	61, 26, 17, 0, 1, 60, 51, 30, 4, 22, 25, 54, 21, 56, 59, 6, 63, 57, 62, 11,
	36, 20, 34, 44, 52,
}

// unsafeParamChars are stripped from every parameter value before signing.
const unsafeParamChars = "!'()*"

// mixinKey scrambles the concatenated img and sub keys through the
// permutation table and truncates to 32 characters.
func mixinKey(imgKey, subKey string) string {
	orig := imgKey + subKey
	var b strings.Builder
	b.Grow(32)
	for _, i := range mixinKeyEncTab[:32] {
		if i < len(orig) {
			b.WriteByte(orig[i])
		}
	}
	return b.String()
}

// signQuery computes the WBI signature for params: a wts timestamp is
// appended, parameters are sorted by key, unsafe characters are stripped
// from values, and the md5 of the encoded query plus the mixin key is added
// as w_rid. The returned string is the final encoded query.
func signQuery(params url.Values, imgKey, subKey string, now time.Time) string {
	key := mixinKey(imgKey, subKey)

	params.Set("wts", strconv.FormatInt(now.Unix(), 10))

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		v := params.Get(k)
		v = strings.Map(func(r rune) rune {
			if strings.ContainsRune(unsafeParamChars, r) {
				return -1
			}
			return r
		}, v)
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(v))
	}

	query := b.String()
	sum := md5.Sum([]byte(query + key))
	return query + "&w_rid=" + hex.EncodeToString(sum[:])
}

// wbiKeyFromURL extracts the key from a WBI image URL: the basename of the
// path without its extension.
func wbiKeyFromURL(rawURL string) string {
	slash := strings.LastIndex(rawURL, "/")
	name := rawURL[slash+1:]
	if dot := strings.Index(name, "."); dot >= 0 {
		name = name[:dot]
	}
	return name
}
