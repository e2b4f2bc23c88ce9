package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DeviceInfo holds the environment descriptors a client reports at session
// start. Any field may be empty when the hosting environment withholds it;
// the fingerprint degrades rather than failing.
type DeviceInfo struct {
	ScreenWidth  int    `json:"screen_width"`
	ScreenHeight int    `json:"screen_height"`
	Language     string `json:"language"`
	Timezone     string `json:"timezone"`
	Platform     string `json:"platform"`
	RenderHash   string `json:"render_hash"`
}

// Fingerprint derives the opaque session device fingerprint from environment
// descriptors. It is stable for identical inputs and used only for baseline
// association — collisions across identical hardware/software images are
// expected and acceptable; this is not an identity proof.
func Fingerprint(info DeviceInfo) string {
	h := sha256.New()
	fmt.Fprintf(h, "%dx%d|%s|%s|%s|%s",
		info.ScreenWidth, info.ScreenHeight,
		info.Language, info.Timezone, info.Platform, info.RenderHash)
	return hex.EncodeToString(h.Sum(nil))
}

// devicePatternLen is the fingerprint prefix length stored on baselines.
const devicePatternLen = 12

// DevicePattern truncates a fingerprint to the prefix persisted with a
// baseline.
func DevicePattern(fingerprint string) string {
	if len(fingerprint) <= devicePatternLen {
		return fingerprint
	}
	return fingerprint[:devicePatternLen]
}
