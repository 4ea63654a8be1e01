package collector

import "time"

// ActivityType is the canonical taxonomy for normalized file activity.
type ActivityType string

const (
	ActivityCreate          ActivityType = "CREATE"
	ActivityDelete          ActivityType = "DELETE"
	ActivityModify          ActivityType = "MODIFY"
	ActivityAttributeChange ActivityType = "ATTRIBUTE_CHANGE"
	ActivitySecurityChange  ActivityType = "SECURITY_CHANGE"
	ActivityClose           ActivityType = "CLOSE"
	ActivityOther           ActivityType = "OTHER"
)

// Activity is one normalized journal event, ready for a downstream
// recorder. Activities are immutable after construction.
//
// The two halves of a rename arrive as separate records (RENAME_OLD_NAME
// then RENAME_NEW_NAME) and are deliberately kept as two separate
// activities of type OTHER; downstream consumers that want a single
// logical rename can pair them by FileRefNumber. The raw reason flags and
// raw USN are preserved in Attributes for exactly that kind of lossless
// correlation.
type Activity struct {
	// FileRefNumber and ParentRefNumber are volume-scoped identifiers.
	// Resolving them to stable external identities is the recorder's job.
	FileRefNumber   uint64
	ParentRefNumber uint64

	ProviderID  string
	Volume      string
	Type        ActivityType
	Path        string // volume + `\` + filename; single level, not a full tree path
	IsDirectory bool
	Timestamp   time.Time // always UTC
	Usn         int64

	// Attributes preserves raw journal detail: "reason_flags" []string,
	// "usn" int64, and "rename_type" ("old_name"/"new_name") when the
	// record is one half of a rename.
	Attributes map[string]any
}

// RenameType returns the "rename_type" attribute, or "" if this activity
// is not part of a rename pair.
func (a *Activity) RenameType() string {
	s, _ := a.Attributes["rename_type"].(string)
	return s
}
