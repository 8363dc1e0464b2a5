package models

import "time"

// SettingType describes how a setting value should be interpreted.
type SettingType string

const (
	SettingTypeString  SettingType = "STRING"
	SettingTypeBoolean SettingType = "BOOLEAN"
)

// SettingKeyTagFieldID stores the profile field id holding physical tag values.
const SettingKeyTagFieldID = "attendance_tag_field_id"

// Setting is a site-wide configuration entry.
type Setting struct {
	Key         string      `db:"key" json:"key"`
	Value       string      `db:"value" json:"value"`
	Type        SettingType `db:"type" json:"type"`
	Description *string     `db:"description" json:"description,omitempty"`
	UpdatedBy   *string     `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}
