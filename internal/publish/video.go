package publish

import (
	"net/url"
	"strings"
)

// DefaultVideoHosts is the built-in allow-list for external video links.
var DefaultVideoHosts = []string{"youtube.com", "youtu.be", "vimeo.com"}

// allowedVideoURL applies the strict format check for external video
// references: http(s), an allow-listed host, and a non-trivial path. A
// video is always a URL, never a staged file.
func allowedVideoURL(raw string, hosts []string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return false
	}
	ok := false
	for _, h := range hosts {
		if host == strings.ToLower(strings.TrimSpace(h)) {
			ok = true
			break
		}
	}
	if !ok {
		return false
	}
	return strings.Trim(u.Path, "/") != "" || u.RawQuery != ""
}
