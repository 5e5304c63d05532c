package publish

import "testing"

func TestAllowedVideoURL(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want bool
	}{
		{"youtube watch", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", true},
		{"youtu.be short", "https://youtu.be/dQw4w9WgXcQ", true},
		{"vimeo", "https://vimeo.com/123456", true},
		{"plain http", "http://youtube.com/watch?v=x", true},
		{"surrounding whitespace", "  https://vimeo.com/987  ", true},
		{"host case insensitive", "https://YouTube.com/watch?v=x", true},
		{"bare host no path", "https://youtube.com", false},
		{"bare host trailing slash", "https://youtube.com/", false},
		{"unlisted host", "https://dailymotion.com/video/x", false},
		{"lookalike host", "https://youtube.com.evil.net/watch?v=x", false},
		{"ftp scheme", "ftp://youtube.com/watch?v=x", false},
		{"scheme relative", "//youtube.com/watch?v=x", false},
		{"garbage", "not a url", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := allowedVideoURL(tc.raw, DefaultVideoHosts); got != tc.want {
				t.Fatalf("allowedVideoURL(%q) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}
