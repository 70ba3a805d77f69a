package compile

import "github.com/fiberloom/engine/model"

// ToFormattedInput converts a Structure plus generation options into the
// shape an Adapter consumes (§6).
func ToFormattedInput(s Structure, opts model.Options) model.FormattedInput {
	timeline := make([]model.Message, 0, len(s.Timeline))
	for _, entry := range s.Timeline {
		timeline = append(timeline, entry.Message)
	}
	return model.FormattedInput{
		SystemMessage: s.SystemMessage,
		Timeline:      timeline,
		Tools:         s.Tools,
		Options:       opts,
	}
}
