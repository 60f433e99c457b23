package ads

// CampaignStatus is the canonical campaign status vocabulary. Every
// adapter maps its platform's native statuses onto these three values;
// anything unrecognized maps to StatusPaused rather than being dropped.
type CampaignStatus string

const (
	StatusActive  CampaignStatus = "active"
	StatusPaused  CampaignStatus = "paused"
	StatusRemoved CampaignStatus = "removed"
)

// Campaign is the canonical copy of one platform campaign. Budget is in
// base currency units; adapters normalize platform-native scaling
// (e.g. micros) before a Campaign ever leaves the adapter boundary.
// Upsert key: (TeamID, Platform, PlatformCampaignID).
type Campaign struct {
	ID                 int64
	TeamID             string
	Platform           Platform
	PlatformCampaignID string
	Name               string
	Status             CampaignStatus
	Budget             float64
	IsActive           bool
}
