package speech

import "context"

// Speaker turns a lyric phrase into audible speech. Speak blocks until
// the phrase has been spoken.
type Speaker interface {
	Speak(ctx context.Context, phrase string) error
	Close() error
}
