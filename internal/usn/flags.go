package usn

// USN reason flags, as reported in the Reason field of a change journal
// record. A single record commonly sets several bits (e.g. DATA_EXTEND is
// almost always accompanied by CLOSE on the final record for a write).
const (
	ReasonDataOverwrite       uint32 = 0x00000001
	ReasonDataExtend          uint32 = 0x00000002
	ReasonDataTruncation      uint32 = 0x00000004
	ReasonNamedDataOverwrite  uint32 = 0x00000010
	ReasonNamedDataExtend     uint32 = 0x00000020
	ReasonNamedDataTruncation uint32 = 0x00000040
	ReasonFileCreate          uint32 = 0x00000100
	ReasonFileDelete          uint32 = 0x00000200
	ReasonEAChange            uint32 = 0x00000400
	ReasonSecurityChange      uint32 = 0x00000800
	ReasonRenameOldName       uint32 = 0x00001000
	ReasonRenameNewName       uint32 = 0x00002000
	ReasonIndexableChange     uint32 = 0x00004000
	ReasonBasicInfoChange     uint32 = 0x00008000
	ReasonHardLinkChange      uint32 = 0x00010000
	ReasonCompressionChange   uint32 = 0x00020000
	ReasonEncryptionChange    uint32 = 0x00040000
	ReasonObjectIDChange      uint32 = 0x00080000
	ReasonReparsePointChange  uint32 = 0x00100000
	ReasonStreamChange        uint32 = 0x00200000
	ReasonTransactedChange    uint32 = 0x00400000
	ReasonIntegrityChange     uint32 = 0x00800000
	ReasonClose               uint32 = 0x80000000
)

// File attribute flags, as reported in the FileAttributes field.
const (
	AttrReadonly          uint32 = 0x00000001
	AttrHidden            uint32 = 0x00000002
	AttrSystem            uint32 = 0x00000004
	AttrDirectory         uint32 = 0x00000010
	AttrArchive           uint32 = 0x00000020
	AttrDevice            uint32 = 0x00000040
	AttrNormal            uint32 = 0x00000080
	AttrTemporary         uint32 = 0x00000100
	AttrSparseFile        uint32 = 0x00000200
	AttrReparsePoint      uint32 = 0x00000400
	AttrCompressed        uint32 = 0x00000800
	AttrOffline           uint32 = 0x00001000
	AttrNotContentIndexed uint32 = 0x00002000
	AttrEncrypted         uint32 = 0x00004000
)

// flagName maps one bit to its symbolic name.
type flagName struct {
	bit  uint32
	name string
}

// reasonFlagNames is the fixed lookup table for Reason bits, in ascending
// bit order. Constructed once; never mutated.
var reasonFlagNames = []flagName{
	{ReasonDataOverwrite, "DATA_OVERWRITE"},
	{ReasonDataExtend, "DATA_EXTEND"},
	{ReasonDataTruncation, "DATA_TRUNCATION"},
	{ReasonNamedDataOverwrite, "NAMED_DATA_OVERWRITE"},
	{ReasonNamedDataExtend, "NAMED_DATA_EXTEND"},
	{ReasonNamedDataTruncation, "NAMED_DATA_TRUNCATION"},
	{ReasonFileCreate, "FILE_CREATE"},
	{ReasonFileDelete, "FILE_DELETE"},
	{ReasonEAChange, "EA_CHANGE"},
	{ReasonSecurityChange, "SECURITY_CHANGE"},
	{ReasonRenameOldName, "RENAME_OLD_NAME"},
	{ReasonRenameNewName, "RENAME_NEW_NAME"},
	{ReasonIndexableChange, "INDEXABLE_CHANGE"},
	{ReasonBasicInfoChange, "BASIC_INFO_CHANGE"},
	{ReasonHardLinkChange, "HARD_LINK_CHANGE"},
	{ReasonCompressionChange, "COMPRESSION_CHANGE"},
	{ReasonEncryptionChange, "ENCRYPTION_CHANGE"},
	{ReasonObjectIDChange, "OBJECT_ID_CHANGE"},
	{ReasonReparsePointChange, "REPARSE_POINT_CHANGE"},
	{ReasonStreamChange, "STREAM_CHANGE"},
	{ReasonTransactedChange, "TRANSACTED_CHANGE"},
	{ReasonIntegrityChange, "INTEGRITY_CHANGE"},
	{ReasonClose, "CLOSE"},
}

// attributeFlagNames is the fixed lookup table for FileAttributes bits,
// in ascending bit order. Constructed once; never mutated.
var attributeFlagNames = []flagName{
	{AttrReadonly, "READONLY"},
	{AttrHidden, "HIDDEN"},
	{AttrSystem, "SYSTEM"},
	{AttrDirectory, "DIRECTORY"},
	{AttrArchive, "ARCHIVE"},
	{AttrDevice, "DEVICE"},
	{AttrNormal, "NORMAL"},
	{AttrTemporary, "TEMPORARY"},
	{AttrSparseFile, "SPARSE_FILE"},
	{AttrReparsePoint, "REPARSE_POINT"},
	{AttrCompressed, "COMPRESSED"},
	{AttrOffline, "OFFLINE"},
	{AttrNotContentIndexed, "NOT_CONTENT_INDEXED"},
	{AttrEncrypted, "ENCRYPTED"},
}

// decodeFlags returns the names of all bits in mask present in the table,
// in table order.
func decodeFlags(mask uint32, table []flagName) []string {
	var names []string
	for _, f := range table {
		if mask&f.bit != 0 {
			names = append(names, f.name)
		}
	}
	return names
}

// DecodeReasonFlags returns the symbolic names of all reason bits set in mask.
func DecodeReasonFlags(mask uint32) []string {
	return decodeFlags(mask, reasonFlagNames)
}

// DecodeAttributeFlags returns the symbolic names of all attribute bits set in mask.
func DecodeAttributeFlags(mask uint32) []string {
	return decodeFlags(mask, attributeFlagNames)
}
