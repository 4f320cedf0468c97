package bot

const (
	MsgUsage = `
		Image Analysis Bot

		/generate <prompt> - generate an image
		/caption - describe the last generated image
		/detect - detect objects in the last generated image`
	MsgNoImage          = "Please generate an image first!"
	MsgGeneratedImage   = "Generated Image"
	MsgGenerateFailed   = "Image generation failed: %s"
	MsgCaption          = "Caption: %s"
	MsgCaptionFailed    = "Caption failed: %s"
	MsgDetectFailed     = "Object detection failed: %s"
	MsgNoObjectsFound   = "No objects detected."
	MsgUnexpectedErr    = "Unexpected error: %s"
	MsgUnknownCommand   = "Unknown command. Send /help for the list of commands."
	MsgDetectionsHeader = "Detected objects:"
)
