package models

import "time"

// Branch is a culture-center branch location. Branches are reference data:
// created and curated by admins, consumed by everyone else.
type Branch struct {
	ID           string    `db:"id" json:"id"`
	CenterName   string    `db:"center_name" json:"center_name"`
	RegionName   string    `db:"region_name" json:"region_name"`
	BranchName   string    `db:"branch_name" json:"branch_name"`
	Address      string    `db:"address" json:"address"`
	Latitude     *float64  `db:"latitude" json:"latitude,omitempty"`
	Longitude    *float64  `db:"longitude" json:"longitude,omitempty"`
	CenterPhone  *string   `db:"center_phone" json:"center_phone,omitempty"`
	ManagerName  *string   `db:"manager_name" json:"manager_name,omitempty"`
	ManagerPhone *string   `db:"manager_phone" json:"manager_phone,omitempty"`
	ManagerEmail *string   `db:"manager_email" json:"manager_email,omitempty"`
	Notes        *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// HasCoordinates reports whether the branch can anchor a radius search.
func (b *Branch) HasCoordinates() bool {
	return b.Latitude != nil && b.Longitude != nil
}

// BranchFilter captures filtering options for listing branches.
type BranchFilter struct {
	Region string
	Search string
}
