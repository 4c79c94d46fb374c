package model

import "strings"

type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformTikTok    Platform = "tiktok"
	PlatformYouTube   Platform = "youtube"
	PlatformTwitter   Platform = "twitter"
)

// Platforms lists every supported target, in display order.
var Platforms = []Platform{
	PlatformFacebook,
	PlatformInstagram,
	PlatformLinkedIn,
	PlatformTikTok,
	PlatformYouTube,
	PlatformTwitter,
}

// ParsePlatform normalises s and reports whether it names a supported platform.
func ParsePlatform(s string) (Platform, bool) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Platforms {
		if p == known {
			return p, true
		}
	}
	return "", false
}

func (p Platform) Valid() bool {
	_, ok := ParsePlatform(string(p))
	return ok
}
