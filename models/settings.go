package models

type HookMode string

const (
	HookSingleVideo HookMode = "single_video"
	HookRandomVideo HookMode = "random_video"
	HookAIText      HookMode = "ai_text"
)

// Settings are the user-editable pipeline preferences.
type Settings struct {
	HookMode         HookMode `json:"hook_mode" yaml:"hook_mode" validate:"omitempty,oneof=single_video random_video ai_text"`
	SelectedHookURL  string   `json:"selected_hook_url" yaml:"selected_hook_url"`
	PublishTimeStart string   `json:"publish_time_start" yaml:"publish_time_start" validate:"omitempty,clock"`
	PublishTimeEnd   string   `json:"publish_time_end" yaml:"publish_time_end" validate:"omitempty,clock"`
}

func DefaultSettings() Settings {
	return Settings{
		HookMode:         HookSingleVideo,
		PublishTimeStart: "09:00",
		PublishTimeEnd:   "21:00",
	}
}

// Asset is an object in a managed asset collection.
type Asset struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}
