package toys

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// captionPrinter formats captions with English digit grouping.
var captionPrinter = message.NewPrinter(language.English)

// Captionf formats a caption line.
func Captionf(format string, args ...any) string {
	return captionPrinter.Sprintf(format, args...)
}

// ProgressiveCaption is the caption of accumulating toys: the pass number,
// the passes issued this frame, the frame time and the smoothed throughput
// in millions of samples per second.
func ProgressiveCaption(st FrameStats) string {
	return Captionf("[Pass %d][Rendering time (%d iterations per frame): %.3f secs (%.1fM Sample/sec)]",
		st.SampleIndex+1, st.Passes, st.Elapsed.Seconds(), st.Throughput/1e6)
}
