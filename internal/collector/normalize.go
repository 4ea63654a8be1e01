package collector

import (
	"usnwatch/internal/usn"
)

// DetermineActivityType resolves a record's reason mask to one activity
// type using a fixed precedence: creation and deletion dominate, renames
// stay unresolved (OTHER, with the half recorded separately), then
// security, attribute, close, and data changes, in that order.
func DetermineActivityType(reason uint32) ActivityType {
	switch {
	case reason&usn.ReasonFileCreate != 0:
		return ActivityCreate
	case reason&usn.ReasonFileDelete != 0:
		return ActivityDelete
	case reason&(usn.ReasonRenameOldName|usn.ReasonRenameNewName) != 0:
		return ActivityOther
	case reason&usn.ReasonSecurityChange != 0:
		return ActivitySecurityChange
	case reason&(usn.ReasonEAChange|usn.ReasonBasicInfoChange|usn.ReasonCompressionChange|usn.ReasonEncryptionChange) != 0:
		return ActivityAttributeChange
	case reason&usn.ReasonClose != 0:
		return ActivityClose
	case reason&(usn.ReasonDataOverwrite|usn.ReasonDataExtend|usn.ReasonDataTruncation) != 0:
		return ActivityModify
	default:
		return ActivityOther
	}
}

// ConvertRecord builds a normalized Activity from one raw journal record.
func ConvertRecord(rec *usn.RawRecord, volume, providerID string) *Activity {
	attrs := map[string]any{
		"reason_flags": rec.ReasonNames(),
		"usn":          rec.Usn,
	}

	switch {
	case rec.Reason&usn.ReasonRenameOldName != 0:
		attrs["rename_type"] = "old_name"
	case rec.Reason&usn.ReasonRenameNewName != 0:
		attrs["rename_type"] = "new_name"
	}

	return &Activity{
		FileRefNumber:   rec.FileRefNumber,
		ParentRefNumber: rec.ParentRefNumber,
		ProviderID:      providerID,
		Volume:          volume,
		Type:            DetermineActivityType(rec.Reason),
		Path:            volume + `\` + rec.FileName,
		IsDirectory:     rec.IsDirectory(),
		Timestamp:       usn.FiletimeToTime(rec.Timestamp),
		Usn:             rec.Usn,
		Attributes:      attrs,
	}
}
