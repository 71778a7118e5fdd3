package types

// RenderSettings configures the stylized still-render request sent to the
// multimodal image model. Part of the undoable snapshot alongside the scene
// object list.
type RenderSettings struct {
	Style       string `json:"style"`
	Prompt      string `json:"prompt,omitempty"`
	AspectRatio string `json:"aspectRatio"`
	Quality     string `json:"quality"`
}

// DefaultRenderSettings returns the editor's initial render configuration.
func DefaultRenderSettings() RenderSettings {
	return RenderSettings{
		Style:       "photorealistic",
		AspectRatio: "16:9",
		Quality:     "standard",
	}
}

// RenderSettingsPatch is a partial render-settings update.
type RenderSettingsPatch struct {
	Style       *string `json:"style,omitempty"`
	Prompt      *string `json:"prompt,omitempty"`
	AspectRatio *string `json:"aspectRatio,omitempty"`
	Quality     *string `json:"quality,omitempty"`
}

// Apply merges the patch into s.
func (p RenderSettingsPatch) Apply(s *RenderSettings) {
	if p.Style != nil {
		s.Style = *p.Style
	}
	if p.Prompt != nil {
		s.Prompt = *p.Prompt
	}
	if p.AspectRatio != nil {
		s.AspectRatio = *p.AspectRatio
	}
	if p.Quality != nil {
		s.Quality = *p.Quality
	}
}
