// Package ads holds the core domain types shared by every layer:
// platforms, credentials, campaigns, metrics, and sync runs. It is a
// leaf package with no internal imports so stores, adapters, and the
// orchestrator can all depend on it without cycles.
package ads

import (
	"fmt"
	"strings"
)

// Platform identifies a supported advertising platform.
type Platform string

const (
	PlatformGoogle  Platform = "google"
	PlatformMeta    Platform = "meta"
	PlatformKakao   Platform = "kakao"
	PlatformNaver   Platform = "naver"
	PlatformCoupang Platform = "coupang"
)

// AllPlatforms lists every supported platform in stable order.
// Used for "sync everything" fanout and CLI help text.
var AllPlatforms = []Platform{
	PlatformGoogle,
	PlatformMeta,
	PlatformKakao,
	PlatformNaver,
	PlatformCoupang,
}

// ParsePlatform converts a user-supplied string to a Platform.
// Matching is case-insensitive.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("ads: unknown platform %q", s)
	}

	return p, nil
}

// Valid reports whether p is one of the supported platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformGoogle, PlatformMeta, PlatformKakao, PlatformNaver, PlatformCoupang:
		return true
	default:
		return false
	}
}

func (p Platform) String() string {
	return string(p)
}
