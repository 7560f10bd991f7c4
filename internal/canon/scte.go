package canon

// SegmentationTypeName maps a SCTE-35 segmentation_type_id to its stable
// human name, per the design document's §6 table.
var SegmentationTypeName = map[int]string{
	0:  "Not Indicated",
	1:  "Content Identification",
	16: "Program Start",
	17: "Program End",
	32: "Chapter Start",
	33: "Chapter End",
	34: "Break Start",
	35: "Break End",
	48: "Provider Ad Start",
	49: "Provider Ad End",
	50: "Distributor Ad Start",
	51: "Distributor Ad End",
	52: "Provider Placement Opportunity Start",
	53: "Provider Placement Opportunity End",
	54: "Distributor Placement Opportunity Start",
	55: "Distributor Placement Opportunity End",
	56: "Provider Overlay Start",
	57: "Provider Overlay End",
	58: "Distributor Overlay Start",
	59: "Distributor Overlay End",
}

// AdBreakStartTypes is the set of segmentation_type_id values that signal
// the start of an ad break (as opposed to a chapter, program, or overlay
// marker).
var AdBreakStartTypes = map[int]bool{
	34: true,
	48: true,
	50: true,
	52: true,
	54: true,
}
