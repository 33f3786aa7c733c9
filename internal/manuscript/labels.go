package manuscript

// User-facing labels shared by the web and terminal presenters.
const (
	Title             = "Frondo"
	Description       = "Upload a scanned manuscript to extract the tablature"
	DropPrompt        = "Drop your manuscript here or click to upload"
	DropHint          = "Supports PDF and image files"
	ProcessingTitle   = "Processing"
	ProcessingMessage = "Processing your manuscript..."
	ErrorTitle        = "Error"
	FeaturesHeading   = "Detected Features"
	StaffLegend       = "Green lines: Detected staff lines"
	CharacterLegend   = "Blue boxes: Potential characters"
	BinaryHeading     = "Processed Binary Image"
	SummaryHeading    = "Detection Summary"
)
