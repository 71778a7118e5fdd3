package types

import "time"

// AssetStatus is the canonical lifecycle state of a generation asset. The
// four values are the normalization target for every vendor status string.
type AssetStatus string

const (
	AssetPending    AssetStatus = "pending"
	AssetProcessing AssetStatus = "processing"
	AssetCompleted  AssetStatus = "completed"
	AssetError      AssetStatus = "error"
)

// Terminal reports whether the status ends the asset's generation lifecycle.
func (s AssetStatus) Terminal() bool {
	return s == AssetCompleted || s == AssetError
}

// Asset is an image or 3D model awaiting or having completed generation.
// Owned exclusively by the scene store; after a terminal status it is only
// mutated by explicit user deletion.
type Asset struct {
	ID           string      `json:"id"`
	OriginalName string      `json:"originalName"`
	ImageURL     string      `json:"imageUrl"`
	Status       AssetStatus `json:"status"`
	ModelURL     string      `json:"modelUrl,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	ErrorMsg     string      `json:"errorMsg,omitempty"`
}

// AssetPatch is a partial asset update; nil fields are left as-is.
type AssetPatch struct {
	OriginalName *string      `json:"originalName,omitempty"`
	ImageURL     *string      `json:"imageUrl,omitempty"`
	Status       *AssetStatus `json:"status,omitempty"`
	ModelURL     *string      `json:"modelUrl,omitempty"`
	ErrorMsg     *string      `json:"errorMsg,omitempty"`
}

// Apply merges the patch into a.
func (p AssetPatch) Apply(a *Asset) {
	if p.OriginalName != nil {
		a.OriginalName = *p.OriginalName
	}
	if p.ImageURL != nil {
		a.ImageURL = *p.ImageURL
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.ModelURL != nil {
		a.ModelURL = *p.ModelURL
	}
	if p.ErrorMsg != nil {
		a.ErrorMsg = *p.ErrorMsg
	}
}
