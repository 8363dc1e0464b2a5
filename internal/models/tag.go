package models

// TagOutcome is the three-way result of a tag association attempt.
type TagOutcome string

const (
	TagAssociated           TagOutcome = "ASSOCIATED"
	TagAlreadyHeldByStudent TagOutcome = "ALREADY_ASSOCIATED_FOR_STUDENT"
	TagAlreadyInUse         TagOutcome = "TAG_ALREADY_IN_USE"
)

// TagAssociation is a profile-field row binding a physical tag to a student.
type TagAssociation struct {
	ID      string `db:"id" json:"id"`
	FieldID string `db:"field_id" json:"field_id"`
	UserID  string `db:"user_id" json:"user_id"`
	Value   string `db:"value" json:"value"`
}

// TagAssociationResult wraps the outcome for responses.
type TagAssociationResult struct {
	Outcome TagOutcome `json:"outcome"`
}
