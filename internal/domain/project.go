package domain

type ProjectID string

type Project struct {
	ID      ProjectID `json:"id"`
	Name    string    `json:"name"`
	OwnerID UserID    `json:"ownerId"`
	Members []UserID  `json:"members"`
}

// HasMember reports whether uid is the owner or a listed member.
func (p *Project) HasMember(uid UserID) bool {
	if p.OwnerID == uid {
		return true
	}
	for _, m := range p.Members {
		if m == uid {
			return true
		}
	}
	return false
}
