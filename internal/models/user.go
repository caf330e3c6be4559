package models

// User is the signed-in farmer profile. Only its shape matters to the offline core.
type User struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	Name              string     `json:"name"`
	Phone             string     `json:"phone,omitempty"`
	Avatar            string     `json:"avatar,omitempty"`
	FarmName          string     `json:"farmName,omitempty"`
	Location          string     `json:"location,omitempty"`
	CropTypes         []CropType `json:"cropTypes"`
	PreferredLanguage string     `json:"preferredLanguage"`
	CreatedAt         string     `json:"createdAt"`
	UpdatedAt         string     `json:"updatedAt"`
}
