package dicom

// String-form VR mnemonics for callers building elements with AddElement,
// which takes the wire-form two-character VR name rather than a tag.VR
// value directly.
const (
	VR_AE = "AE"
	VR_AS = "AS"
	VR_AT = "AT"
	VR_CS = "CS"
	VR_DA = "DA"
	VR_DS = "DS"
	VR_DT = "DT"
	VR_FL = "FL"
	VR_FD = "FD"
	VR_IS = "IS"
	VR_LO = "LO"
	VR_LT = "LT"
	VR_OB = "OB"
	VR_OD = "OD"
	VR_OF = "OF"
	VR_OL = "OL"
	VR_OV = "OV"
	VR_OW = "OW"
	VR_PN = "PN"
	VR_SH = "SH"
	VR_SL = "SL"
	VR_SQ = "SQ"
	VR_SS = "SS"
	VR_ST = "ST"
	VR_SV = "SV"
	VR_TM = "TM"
	VR_UC = "UC"
	VR_UI = "UI"
	VR_UL = "UL"
	VR_UN = "UN"
	VR_UR = "UR"
	VR_US = "US"
	VR_UT = "UT"
	VR_UV = "UV"
)
